// Package discovery implements spec.md §4.5/§6.2: finding a SlimProto
// control server on the local network before the first session starts.
//
// Two probes race in parallel — a legacy UDP broadcast (the protocol's own
// discovery mechanism) and an mDNS/DNS-SD browse for "_slimproto._tcp"
// (grounded on the teacher's pure-Go use of brutella/dnssd in
// src/dns_sd.go, there used to announce rather than browse). Whichever
// resolves an address first wins; the other is abandoned.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// ErrTimeout is returned when no server responds before the deadline.
var ErrTimeout = errors.New("discovery: timed out waiting for a server")

// DefaultPort is the well-known SlimProto control port.
const DefaultPort = 3483

const (
	udpDiscoveryPort = DefaultPort
	udpProbeInterval = 5 * time.Second
	dnssdServiceType = "_slimproto._tcp.local."
)

// Find probes for a server for at most timeout, returning its address. It
// starts both probes and returns as soon as either resolves.
func Find(ctx context.Context, timeout time.Duration, logger *log.Logger) (net.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan net.IP, 2)

	go probeUDP(ctx, found, logger)
	go probeDNSSD(ctx, found, logger)

	select {
	case ip := <-found:
		return ip, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// probeUDP implements spec.md §6.2: broadcast a single 'e' byte to
// 255.255.255.255:3483 every 5s; the first response's source IPv4 wins.
func probeUDP(ctx context.Context, found chan<- net.IP, logger *log.Logger) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		logger.Warn("udp discovery: failed to bind socket", "err", err)
		return
	}
	defer conn.Close()

	if err := setBroadcast(conn); err != nil {
		logger.Warn("udp discovery: failed to enable broadcast", "err", err)
		return
	}

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: udpDiscoveryPort}

	go func() {
		ticker := time.NewTicker(udpProbeInterval)
		defer ticker.Stop()
		for {
			if _, err := conn.WriteToUDP([]byte{'e'}, broadcastAddr); err != nil {
				logger.Debug("udp discovery: probe send failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 64)
	_, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return
	}
	select {
	case found <- addr.IP:
	default:
	}
}

func setBroadcast(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return setSocketBroadcast(rawConn)
}

// probeDNSSD browses for a _slimproto._tcp service via mDNS/DNS-SD. It is a
// best-effort secondary path: failures here are logged, not fatal, since
// the UDP probe is the protocol's primary discovery mechanism.
func probeDNSSD(ctx context.Context, found chan<- net.IP, logger *log.Logger) {
	err := browse(ctx, dnssdServiceType, func(ip net.IP) {
		select {
		case found <- ip:
		default:
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("dns-sd discovery: browse failed", "err", err)
	}
}

// MustParseServerAddr parses a "host" or "host:port" string from
// --server, defaulting the port to DefaultPort.
func MustParseServerAddr(addr string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = fmt.Sprintf("%d", DefaultPort)
	}
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, 0, fmt.Errorf("discovery: cannot resolve %q: %w", host, err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, 0, fmt.Errorf("discovery: invalid port %q", portStr)
	}
	return ips[0], port, nil
}
