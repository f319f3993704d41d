package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the JSON logger shared by the server, services and workers.
// Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl > logrus.TraceLevel || lvl < logrus.ErrorLevel {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}
