// Internal API, not to be exported
package internal

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logger the adapters use for parse diagnostics.
// The messages are aimed at developers debugging a malformed file, not at
// end users.
type Logger struct {
	entry *logrus.Logger
}

type LogLevel int

const (
	// error levels that should almost always be printed
	LevelFatal LogLevel = iota
	LevelError

	// debugging levels, okay to disable
	LevelWarn // something may be wrong, but not necessarily an error
	LevelInfo // nothing wrong, informational only

	// Production code by default only shows warnings and above.
	LogLevelDefault = LevelWarn

	// min, max levels for setting print level
	LevelMin = LevelFatal
	LevelMax = LevelInfo
)

var levelToLogrus = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
}

func NewLogger() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(levelToLogrus[LogLevelDefault])
	return &Logger{entry: l}
}

func (l *Logger) LogLevel() LogLevel {
	lv := l.entry.GetLevel()
	for i, ll := range levelToLogrus {
		if ll == lv {
			return LogLevel(i)
		}
	}
	return LogLevelDefault
}

// SetLogLevel returns the old level
func (l *Logger) SetLogLevel(level LogLevel) LogLevel {
	if level < LevelMin || level > LevelMax {
		panic("trying to set invalid log level")
	}
	old := l.LogLevel()
	l.entry.SetLevel(levelToLogrus[level])
	return old
}

func (l *Logger) Info(v ...any)                 { l.entry.Info(v...) }
func (l *Logger) Infof(format string, v ...any) { l.entry.Infof(format, v...) }

func (l *Logger) Warn(v ...any)                 { l.entry.Warn(v...) }
func (l *Logger) Warnf(format string, v ...any) { l.entry.Warnf(format, v...) }

func (l *Logger) Error(v ...any)                 { l.entry.Error(v...) }
func (l *Logger) Errorf(format string, v ...any) { l.entry.Errorf(format, v...) }

func (l *Logger) Fatal(v ...any)                 { l.entry.Fatal(v...) }
func (l *Logger) Fatalf(format string, v ...any) { l.entry.Fatalf(format, v...) }
