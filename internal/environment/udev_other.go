//go:build !linux

package environment

// OutputDevices is empty on non-Linux hosts: udev enumeration has no
// equivalent here, and callers treat an empty list as "unknown, not none."
func OutputDevices() []string { return nil }
