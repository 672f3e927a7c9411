package logger

import (
	"fmt"
	"os"
)

// Init initializes the plain logger. Kept for early-startup messages that
// happen before InitStructured runs.
func Init() {
	zlog = zlog.With().Logger()
}

// Info logs a printf-style informational message
func Info(format string, args ...interface{}) {
	zlog.Info().Msg(fmt.Sprintf(format, args...))
}

// Error logs a printf-style error message
func Error(format string, args ...interface{}) {
	zlog.Error().Msg(fmt.Sprintf(format, args...))
}

// Fatal logs a printf-style message and exits
func Fatal(format string, args ...interface{}) {
	zlog.Error().Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}
