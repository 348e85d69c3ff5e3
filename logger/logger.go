// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls level and output format.
type Options struct {
	Level  string
	Pretty bool
	Output io.Writer // defaults to stdout
}

// New returns a timestamped logger; unknown levels fall back to info.
func New(opts Options) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
