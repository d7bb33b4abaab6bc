// Package logger wraps zerolog behind a small interface so packages depend
// on a component-tagged logger rather than importing zerolog directly.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the interface components take a dependency on. It mirrors the
// subset of zerolog.Logger's event-builder API used across this repo.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	WithComponent(component string) Logger
	Raw() zerolog.Logger
}

type wrapped struct {
	z zerolog.Logger
}

// New builds a Logger from Config. Pass an explicit instance into every
// constructor that needs one (pkg/lifecycle, pkg/engine, pkg/registry, ...);
// this package keeps no logger singleton. New does set zerolog's
// package-level TimeFieldFormat, which applies to every zerolog logger in
// the process.
func New(cfg Config) Logger {
	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = timeFormat

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	z := zerolog.New(output).Level(level).With().Timestamp().Logger()

	return &wrapped{z: z}
}

func (w *wrapped) Trace() *zerolog.Event { return w.z.Trace() }
func (w *wrapped) Debug() *zerolog.Event { return w.z.Debug() }
func (w *wrapped) Info() *zerolog.Event  { return w.z.Info() }
func (w *wrapped) Warn() *zerolog.Event  { return w.z.Warn() }
func (w *wrapped) Error() *zerolog.Event { return w.z.Error() }

func (w *wrapped) WithComponent(component string) Logger {
	return &wrapped{z: w.z.With().Str("component", component).Logger()}
}

func (w *wrapped) Raw() zerolog.Logger { return w.z }

// Nop returns a Logger that discards everything, for tests that don't care
// about log output.
func Nop() Logger {
	return &wrapped{z: zerolog.Nop()}
}
