// Package logger configures the application logger.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New creates a logrus logger writing to w with the given level and
// format ("text" or "json"). An unknown level falls back to info.
func New(w io.Writer, level string, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
