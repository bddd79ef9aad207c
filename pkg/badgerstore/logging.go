package badgerstore

import (
	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v3"
)

// badgerLogger adapts a charmbracelet logger to badger.Logger.
type badgerLogger struct {
	logger *log.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.logger.Errorf(format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.logger.Warnf(format, args...)
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.logger.Infof(format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.logger.Debugf(format, args...)
}

func newLogger(logger *log.Logger) badger.Logger {
	if logger == nil {
		return nil
	}
	return &badgerLogger{logger: logger.WithPrefix("badger")}
}
