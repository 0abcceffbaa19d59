// Package logging builds the zerolog logger shared by the vault and its tool.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level       string // debug | info | warn | error; default info
	ServiceName string
	Pretty      bool // human-readable console output instead of JSON
	Out         io.Writer
}

func New(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	l := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.ServiceName != "" {
		l = l.Str("service", cfg.ServiceName)
	}
	return l.Logger()
}
