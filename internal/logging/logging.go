// Package logging builds the structured logger shared by the driver and the
// transformation applier.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "DEOBF_LOG_LEVEL"

// New returns a logger writing to w at level (debug, info, warn or error).
// DEOBF_LOG_LEVEL takes precedence over level. Unknown levels mean info.
func New(w io.Writer, level string) *log.Logger {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "deobf",
	})
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	lg.SetLevel(ParseLevel(level))
	return lg
}

// ParseLevel maps a level name to a log level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	}
	return log.InfoLevel
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	lg := log.New(io.Discard)
	lg.SetLevel(log.FatalLevel)
	return lg
}
