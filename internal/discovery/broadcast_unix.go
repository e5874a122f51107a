//go:build unix

package discovery

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketBroadcast enables SO_BROADCAST on the discovery socket, the same
// sockopt-via-raw-fd pattern the teacher uses for SO_REUSEADDR in
// src/kissnet.go, generalized from net.TCPListener to net.UDPConn's
// syscall.RawConn.
func setSocketBroadcast(rawConn syscall.RawConn) error {
	var sockErr error
	err := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
