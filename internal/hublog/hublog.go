// Package hublog provides the structured logger shared by every core
// component (tree, resource, observation, backup). It wraps log/slog the
// same way the rest of the stack wraps stdlib pieces: a thin, swappable
// default, not a bespoke logging framework.
package hublog

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nxthongbk/datahub/internal/config"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init builds the process-wide logger from configuration. Call after
// config.Initialize. Safe to call more than once (e.g. in tests).
//
// When config key "log-file" is set, output is routed through a rotating
// lumberjack writer sized by the "log-rotate.*" keys, so a long-lived
// datahubd on an embedded gateway doesn't fill its disk with log lines.
// Otherwise output goes to stderr, unrotated.
func Init() {
	level := slog.LevelInfo
	if config.GetBool("debug") {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if path := config.GetString("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    config.GetInt("log-rotate.max-size-mb"),
			MaxBackups: config.GetInt("log-rotate.max-backups"),
			MaxAge:     config.GetInt("log-rotate.max-age-days"),
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if config.GetString("log-format") == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger = slog.New(handler)
}

// Logger returns the shared logger.
func Logger() *slog.Logger { return logger }

// SetLogger overrides the shared logger. Used by tests that want to assert
// on captured output.
func SetLogger(l *slog.Logger) { logger = l }
