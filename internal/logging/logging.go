// Package logging configures the application-wide structured logger used
// by every other package in this module.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// JSON selects machine-readable output instead of the default
	// human-readable console format.
	JSON bool
	// FilePattern, if set, is an strftime pattern (e.g. "storm-%Y-%m-%d.log")
	// naming a file to additionally write log lines to, opened for append.
	FilePattern string
}

// New builds a configured logger. Callers thread the returned *log.Logger
// through their constructors rather than reaching for a global — this
// module does not keep a package-level singleton.
func New(opts Options) (*log.Logger, error) {
	writer := io.Writer(os.Stderr)

	if opts.FilePattern != "" {
		pattern, err := strftime.New(opts.FilePattern)
		if err != nil {
			return nil, err
		}
		name := pattern.FormatString(time.Now())

		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writer = io.MultiWriter(os.Stderr, f)
	}

	logger := log.NewWithOptions(writer, log.Options{
		ReportTimestamp: true,
		Formatter:       formatter(opts.JSON),
	})
	logger.SetLevel(parseLevel(opts.Level))

	return logger, nil
}

func formatter(asJSON bool) log.Formatter {
	if asJSON {
		return log.JSONFormatter
	}
	return log.TextFormatter
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
