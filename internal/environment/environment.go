// Package environment implements the Environment collaborator (spec.md
// §6.4): probing installed decoders and reading the host MAC address. Both
// are explicitly out of the protocol engine's scope; this package is the
// small amount of glue spec.md §1 says collapses to ~50 lines.
package environment

import (
	"net"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

// DefaultMAC is the deterministic fallback used when no usable network
// interface is found (spec.md §6.4).
var DefaultMAC = [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

// decoderTagByLongName maps an ffmpeg decoder's long name to the short
// capability tag SlimProto servers expect (spec.md §6.4).
var decoderTagByLongName = map[string]string{
	"alac":   "alc",
	"wma":    "wma",
	"wmap":   "wmap",
	"wmal":   "wmal",
	"flac":   "flc",
	"aac":    "aac",
	"vorbis": "ogg",
	"pcm":    "pcm",
	"mp3":    "mp3",
}

var ffmpegDecoderLine = regexp.MustCompile(`^\s*[A-Z.]{6}\s+(\S+)`)

// DecoderCaps returns the short capability tags for decoders available on
// this host, probed via `ffmpeg -decoders`. When ffmpeg isn't on PATH, it
// falls back to advertising every known tag rather than none, so a server
// isn't misled into thinking the player can decode nothing.
func DecoderCaps() []string {
	out, err := exec.Command("ffmpeg", "-decoders").Output()
	if err != nil {
		return fallbackCaps()
	}
	return parseFfmpegDecoders(string(out))
}

func parseFfmpegDecoders(output string) []string {
	seen := map[string]bool{}
	for _, line := range splitLines(output) {
		m := ffmpegDecoderLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		longName := m[1]
		for name, tag := range decoderTagByLongName {
			if strings.Contains(longName, name) {
				seen[tag] = true
			}
		}
	}
	if len(seen) == 0 {
		return fallbackCaps()
	}
	caps := make([]string, 0, len(seen))
	for tag := range seen {
		caps = append(caps, tag)
	}
	sort.Strings(caps)
	return caps
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func fallbackCaps() []string {
	caps := make([]string, 0, len(decoderTagByLongName))
	for _, tag := range decoderTagByLongName {
		caps = append(caps, tag)
	}
	sort.Strings(caps)
	return caps
}

// MACAddress returns the hardware address of the first non-loopback
// interface that has one, or DefaultMAC if none is found (spec.md §6.4).
func MACAddress() [6]byte {
	ifaces, err := net.Interfaces()
	if err != nil {
		return DefaultMAC
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}
		var mac [6]byte
		copy(mac[:], iface.HardwareAddr)
		return mac
	}
	return DefaultMAC
}
