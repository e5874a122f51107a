// Command storm-player is a SlimProto-speaking music player endpoint: it
// discovers a control server, maintains a session against it, and follows
// server-issued redirects by spawning a successor session.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/cedricchevalier19/Storm/internal/config"
	"github.com/cedricchevalier19/Storm/internal/discovery"
	"github.com/cedricchevalier19/Storm/internal/environment"
	"github.com/cedricchevalier19/Storm/internal/logging"
	"github.com/cedricchevalier19/Storm/internal/player"
	"github.com/cedricchevalier19/Storm/internal/session"
)

func main() {
	cfg := config.Default()

	// A config file path, if given, must be known before the rest of the
	// flags are bound, since the overlay it names supplies their defaults.
	// Scanned with its own throwaway FlagSet so unknown flags don't abort
	// this early pass.
	pre := pflag.NewFlagSet("storm-player-pre", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	configFile := pre.StringP("config", "c", "", "YAML config file overlaying the defaults below")
	_ = pre.Parse(os.Args[1:])

	if err := cfg.LoadOverlay(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "storm-player: loading config overlay: %v\n", err)
		os.Exit(2)
	}

	pflag.StringVarP(configFile, "config", "c", *configFile, "YAML config file overlaying the defaults below")
	cfg.BindFlags(pflag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "storm-player - a SlimProto client.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: storm-player [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		JSON:        cfg.LogJSON,
		FilePattern: cfg.LogFilePattern,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "storm-player: configuring logger: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(2)
	}
}

// run drives the discover-connect-redirect loop until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	mac := probeMAC(cfg.MAC)
	caps := environment.DecoderCaps()
	outputDevices := environment.OutputDevices()
	logger.Info("starting", "name", cfg.Name, "decoder_caps", caps, "mac", fmt.Sprintf("%x", mac), "output_devices", outputDevices)
	if !cfg.NoAudio && len(outputDevices) == 0 {
		logger.Warn("no output devices enumerated via udev; PortAudio will still try the host default")
	}

	serverIP, serverPort, err := resolveServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("resolving server: %w", err)
	}

	sessCfg := session.Config{
		ServerIP:         serverIP,
		Name:             cfg.Name,
		SyncGroupID:      cfg.SyncGroupID,
		InitialBufferKiB: cfg.InitialBufferKiB,
		DecoderCaps:      caps,
		MAC:              mac,
	}

	for {
		plyr, err := newPlayer(cfg)
		if err != nil {
			return fmt.Errorf("opening player: %w", err)
		}

		addr := net.JoinHostPort(sessCfg.ServerIP.String(), fmt.Sprintf("%d", serverPort))
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			plyr.Close()
			return fmt.Errorf("connecting to %s: %w", addr, err)
		}

		sess := session.New(conn, sessCfg, plyr, logger)

		done := make(chan error, 1)
		go func() { done <- sess.Run() }()

		select {
		case <-ctx.Done():
			sess.Stop()
			<-done
			plyr.Close()
			logger.Info("shut down on signal")
			return nil

		case redirect := <-sess.RedirectCh():
			<-done
			plyr.Close()
			logger.Info("following server redirect", "ip", redirect.IP, "sync_group", redirect.SyncGroupID)
			sessCfg.ServerIP = redirect.IP
			sessCfg.SyncGroupID = redirect.SyncGroupID
			sessCfg.Name = redirect.Name
			sessCfg.InitialBufferKiB = redirect.BufferSizeKiB
			serverPort = discovery.DefaultPort // a `serv` redirect names only an IP; the protocol's well-known port applies

		case err := <-done:
			plyr.Close()
			if err != nil {
				return fmt.Errorf("session terminated: %w", err)
			}
			return nil
		}
	}
}

func newPlayer(cfg config.Config) (player.Player, error) {
	if cfg.NoAudio {
		return player.NewNullPlayer(), nil
	}
	return player.NewPortAudioPlayer(44100, 1024)
}

func resolveServer(ctx context.Context, cfg config.Config, logger *log.Logger) (net.IP, int, error) {
	if cfg.ServerAddr != "" {
		return discovery.MustParseServerAddr(cfg.ServerAddr)
	}
	timeout := time.Duration(cfg.DiscoveryTimeoutSeconds) * time.Second
	ip, err := discovery.Find(ctx, timeout, logger)
	return ip, discovery.DefaultPort, err
}

func probeMAC(override string) [6]byte {
	if override == "" {
		return environment.MACAddress()
	}
	hw, err := net.ParseMAC(override)
	if err != nil || len(hw) != 6 {
		return environment.MACAddress()
	}
	var mac [6]byte
	copy(mac[:], hw)
	return mac
}
