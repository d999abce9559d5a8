// Package logging provides the process-wide logger.
package logging

import (
	"io"
	"os"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

var (
	// Log is the default logger for the application.
	Log = logrus.New()
)

// Init initializes the logger with the given level and format ("text" or "json").
func Init(level, format string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	Log.SetLevel(logLevel)
	Log.SetOutput(os.Stderr)
	if format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Truncate shortens s to maxLen runes for log fields and previews.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}
