package session

import (
	"fmt"
	"strings"
)

// buildCapabilities assembles the HELO capabilities string per spec.md
// §4.3.1: decoder tags first, then the fixed player capabilities, then an
// optional sync group hint.
func buildCapabilities(decoderCaps []string, name, syncGroupID string) string {
	caps := make([]string, 0, len(decoderCaps)+6)
	caps = append(caps, decoderCaps...)
	caps = append(caps,
		"Model=Storm",
		fmt.Sprintf("ModelName=%s", name),
		"AccuratePlayPoints=1",
		"HasDigitalOut=1",
		"HasPolarityInversion=1",
	)
	if syncGroupID != "" {
		caps = append(caps, fmt.Sprintf("SyncgroupID=%s", syncGroupID))
	}
	return strings.Join(caps, ",")
}
