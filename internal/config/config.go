// Package config assembles the process-wide Config from CLI flags and an
// optional YAML overlay file.
package config

import (
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds everything the bootstrap needs to start discovery and the
// first session. It is passed by value into constructors — there is no
// package-level mutable singleton (see DESIGN.md).
type Config struct {
	// ServerAddr, if set, skips discovery and connects directly
	// (host:port, port defaults to 3483 if omitted).
	ServerAddr string `yaml:"server_addr"`
	// Name is the initial player display name.
	Name string `yaml:"name"`
	// SyncGroupID, if set, is advertised in HELO capabilities.
	SyncGroupID string `yaml:"sync_group_id"`
	// InitialBufferKiB seeds StatData's buffer_size before any Stream
	// command raises it.
	InitialBufferKiB uint32 `yaml:"initial_buffer_kib"`
	// MAC overrides the probed MAC address; empty means probe.
	MAC string `yaml:"mac"`
	// DiscoveryTimeoutSeconds bounds how long bootstrap waits for a UDP or
	// DNS-SD discovery response before giving up, in seconds.
	DiscoveryTimeoutSeconds int `yaml:"discovery_timeout_seconds"`
	// NoAudio selects the NullPlayer instead of the PortAudio player.
	NoAudio bool `yaml:"no_audio"`
	// LogLevel and LogJSON configure internal/logging.
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	// LogFilePattern, if set, is an strftime pattern naming an additional
	// log file. The name is formatted once at startup; the file does not
	// rotate.
	LogFilePattern string `yaml:"log_file_pattern"`
}

// Default returns the baseline configuration before flags/overlay apply.
func Default() Config {
	return Config{
		Name:                    "Storm",
		InitialBufferKiB:        32,
		DiscoveryTimeoutSeconds: 30,
		LogLevel:                "info",
	}
}

// BindFlags registers this config's fields onto fs, following the
// teacher's cmd/direwolf flag-parsing shape (one flag set, flags bound
// directly to fields).
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ServerAddr, "server", c.ServerAddr, "control server address (host:port); empty means discover one")
	fs.StringVar(&c.Name, "name", c.Name, "player display name")
	fs.StringVar(&c.SyncGroupID, "sync-group", c.SyncGroupID, "sync group id to advertise")
	fs.Uint32Var(&c.InitialBufferKiB, "buffer-size-kb", c.InitialBufferKiB, "initial decoder buffer size in KiB")
	fs.StringVar(&c.MAC, "mac", c.MAC, "override probed MAC address (aa:bb:cc:dd:ee:ff)")
	fs.IntVar(&c.DiscoveryTimeoutSeconds, "discovery-timeout", c.DiscoveryTimeoutSeconds, "seconds to wait for server discovery")
	fs.BoolVar(&c.NoAudio, "no-audio", c.NoAudio, "use a null player instead of opening an audio device")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "emit logs as JSON")
	fs.StringVar(&c.LogFilePattern, "log-file-pattern", c.LogFilePattern, "strftime pattern naming an additional log file (formatted once at startup)")
}

// LoadOverlay reads a YAML file and overlays any fields it sets onto c.
// Missing files are not an error; c is left unchanged.
func (c *Config) LoadOverlay(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}
