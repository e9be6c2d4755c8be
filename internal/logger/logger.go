// Package logger configures the process-wide charmbracelet logger used by every
// package through the package-level log functions.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Configure replaces the default logger with one writing to out at the given level.
// An empty level falls back to LOG_LEVEL and then to info.
func Configure(level string, out io.Writer) *log.Logger {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		ReportCaller:    ParseLevel(level) == log.DebugLevel,
		Level:           ParseLevel(level),
	})
	log.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a log.Level. Unknown names map to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
