package notifyws

import (
	"github.com/sirupsen/logrus"
)

type logrusLogger struct {
	logrus.FieldLogger
}

// NewLogrusLogger wraps a logrus logger or entry so it can be handed to the transport.
func NewLogrusLogger(l logrus.FieldLogger) logger {
	return logrusLogger{FieldLogger: l}
}

func (l logrusLogger) WithField(key string, value any) logger {
	return logrusLogger{FieldLogger: l.FieldLogger.WithField(key, value)}
}

func defaultLogger() logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return NewLogrusLogger(l)
}
