package logrus

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/collcache"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ collcache.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f collcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f collcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}
func (l LogrusLogger) Warn(msg string, f collcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}
func (l LogrusLogger) Error(msg string, f collcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

// New logs JSON to stderr; debug lowers the level to Debug.
func New(debug bool) LogrusLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return LogrusLogger{E: logrus.NewEntry(l)}
}
