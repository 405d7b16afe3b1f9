// Package logging builds the per-component loggers used across fp.
//
// Components log through a plain *log.Logger with a "[component] " prefix.
// Output goes to a rotating file when one is configured, otherwise to stderr
// when verbose logging is on, otherwise nowhere.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where component logs go.
type Config struct {
	// File is the log file path. Empty means no file.
	File string

	// MaxSizeMB rotates the file once it reaches this size (default 10)
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 3)
	MaxBackups int

	// Verbose sends logs to stderr when no file is set
	Verbose bool
}

// Logging hands out component loggers sharing one destination.
type Logging struct {
	out    io.Writer
	closer io.Closer
}

// New creates the shared destination described by cfg.
func New(cfg Config) *Logging {
	if cfg.File != "" {
		if cfg.MaxSizeMB <= 0 {
			cfg.MaxSizeMB = 10
		}
		if cfg.MaxBackups <= 0 {
			cfg.MaxBackups = 3
		}
		_ = os.MkdirAll(filepath.Dir(cfg.File), 0755)
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		return &Logging{out: rotator, closer: rotator}
	}

	if cfg.Verbose {
		return &Logging{out: os.Stderr}
	}
	return &Logging{out: io.Discard}
}

// For returns a logger for component.
func (l *Logging) For(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func (l *Logging) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
