//go:build !unix

package discovery

import "syscall"

// setSocketBroadcast is a no-op on platforms without SO_BROADCAST exposed
// the same way; most non-unix Go runtimes permit broadcast writes without
// the opt-in.
func setSocketBroadcast(_ syscall.RawConn) error { return nil }
