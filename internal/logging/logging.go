// Package logging builds the zerolog logger used across launchkit. Loggers
// travel in a context.Context; library packages read them with zerolog.Ctx
// and never write to a global logger.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamancini/launchkit/internal/types"
)

// Options configures New.
type Options struct {
	Level   zerolog.Level
	Format  types.LogFormat
	Service string
	Version string
}

// New creates a logger writing to w. Console output is meant for terminals,
// JSON output for log shippers.
func New(w io.Writer, opts Options) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if opts.Format.Default() == types.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(w).Level(opts.Level).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	return ctx.Logger()
}

// LevelFor maps the CLI verbosity flags to a level. Quiet wins over verbose.
func LevelFor(verbose, quiet bool) zerolog.Level {
	switch {
	case quiet:
		return zerolog.ErrorLevel
	case verbose:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a level name such as "debug" or "warn". An empty name
// is info.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// Component returns the logger in ctx tagged with a component name.
func Component(ctx context.Context, name string) zerolog.Logger {
	return zerolog.Ctx(ctx).With().Str("component", name).Logger()
}
