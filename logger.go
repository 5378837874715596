package resilock

import (
	"fmt"
	"log"
)

// Logger provides structured logging for resilock operations. Every
// component that can fail or transition state accepts one; a nil Logger is
// treated as NoOpLogger.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NoOpLogger discards everything. It is the default when no Logger is supplied.
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, fields ...interface{}) {}
func (l *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Error(msg string, fields ...interface{}) {}

func orNoOpLogger(l Logger) Logger {
	if l == nil {
		return &NoOpLogger{}
	}
	return l
}

// StdLogger writes key=value formatted lines via the standard library log
// package. Intended for development; production deployments should use
// ZapLogger or an equivalent adapter.
type StdLogger struct {
	prefix string
	logger *log.Logger
}

// NewStdLogger creates a logger that writes to standard error with the given prefix.
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix, logger: log.Default()}
}

func (l *StdLogger) Debug(msg string, fields ...interface{}) { l.log("DEBUG", msg, fields...) }
func (l *StdLogger) Info(msg string, fields ...interface{})  { l.log("INFO", msg, fields...) }
func (l *StdLogger) Warn(msg string, fields ...interface{})  { l.log("WARN", msg, fields...) }
func (l *StdLogger) Error(msg string, fields ...interface{}) { l.log("ERROR", msg, fields...) }

func (l *StdLogger) log(level, msg string, fields ...interface{}) {
	fieldStr := ""
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			fieldStr += " " + toString(fields[i]) + "=" + toString(fields[i+1])
		}
	}
	l.logger.Printf("%s [%s] %s%s", l.prefix, level, msg, fieldStr)
}

func toString(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
