// Package logging builds the process-wide logrus instance and threads it
// through constructors as an explicit argument rather than a singleton.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New builds a JSON-formatted logger at the given level name (one of the
// standard logrus severities: "debug", "info", "warn", "error").
func New(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(parsed)
	return logger, nil
}

// Nop returns a logger that discards everything, for use in tests where
// logging side-channels would only add noise.
func Nop() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
