package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// logger is the process-wide base logger
	logger *Logger
	once   sync.Once
)

// Logger wraps logrus with printf-style helpers. A Logger derived with With
// shares the base output and level but carries its own fields.
type Logger struct {
	*logrus.Logger
	fields logrus.Fields
}

// New returns the process-wide logger, creating it on first use
func New() *Logger {
	once.Do(func() {
		logger = &Logger{Logger: logrus.New()}

		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006/01/02 15:04:05",
			FullTimestamp:   true,
			ForceColors:     true,
			DisableSorting:  true,
		})

		if os.Getenv("DEBUG") == "true" {
			logger.SetLevel(logrus.DebugLevel)
			logger.Info("Debug logging enabled")
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
	})
	return logger
}

// With returns a child logger that attaches key=value to every entry
func (l *Logger) With(key string, value interface{}) *Logger {
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{Logger: l.Logger, fields: fields}
}

// WithRun scopes a logger to one tool run
func (l *Logger) WithRun(toolID, runID string) *Logger {
	return l.With("tool", toolID).With("run", shortID(runID))
}

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithFields(l.fields)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry().Debug(fmt.Sprintf(format, args...))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry().Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry().Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry().Error(fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.entry().Fatal(fmt.Sprintf(format, args...))
}

// IsDebugEnabled returns whether debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.GetLevel() == logrus.DebugLevel
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
