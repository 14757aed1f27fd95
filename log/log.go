package log

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// log.Info("tenant %s connection initialized", id)

func Debug(format string, args ...any) {
	log.Debugf(format, args...)
}

func Info(format string, args ...any) {
	log.Infof(format, args...)
}

func Warn(format string, args ...any) {
	log.Warnf(format, args...)
}

func Error(format string, args ...any) {
	log.Errorf(format, args...)
}

func Fatal(format string, args ...any) {
	log.Fatalf(format, args...)
}

// SetLevel accepts logrus level names; unknown values fall back to info.
func SetLevel(level string) {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func IsDebug() bool {
	return log.IsLevelEnabled(log.DebugLevel)
}

type Entry struct {
	entry *log.Entry
}

// Fields returns a logger carrying structured fields, e.g. the data source id.
func Fields(fields map[string]any) Entry {
	return Entry{entry: log.WithFields(log.Fields(fields))}
}

func (e Entry) Debug(format string, args ...any) {
	e.entry.Debugf(format, args...)
}

func (e Entry) Info(format string, args ...any) {
	e.entry.Infof(format, args...)
}

func (e Entry) Warn(format string, args ...any) {
	e.entry.Warnf(format, args...)
}

func (e Entry) Error(format string, args ...any) {
	e.entry.Errorf(format, args...)
}
