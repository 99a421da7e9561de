// Package kglog initializes the process-wide zerolog logger the way
// internal/observability/logging.go does, so every kg* package that takes
// a zerolog.Logger constructor argument sees the same timestamp format and
// level configuration.
package kglog

import (
	"fmt"
	stdlog "log"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. If logPath is non-empty, logs
// are written only to that file (append mode) rather than stdout, mirroring
// the teacher's rationale of not interfering with an interactive TUI on
// stdout. A file that fails to open falls back to stdout with a stderr
// warning. Returns the configured logger for callers that want to pass it
// explicitly rather than reach for the package-global.
func Init(logPath, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "kglog: failed to open log file %q: %v\n", logPath, err)
		}
	}

	log.Logger = log.Output(w).With().Timestamp().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	return log.Logger
}
