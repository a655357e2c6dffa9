// Package logger provides the leveled logging utility used across temposync.
// It wraps the standard `log` package and filters messages by a globally
// configured level.
package logger

import (
	"log"
	"strings"
)

// LogLevel represents a logging verbosity level. Smaller values are more verbose.
type LogLevel int

const (
	// LevelDebug is used for detailed diagnostic output (plan candidates, SQL, API URLs).
	LevelDebug LogLevel = iota
	// LevelInfo is used for general progress messages.
	LevelInfo
	// LevelWarn is used for recoverable anomalies (fallbacks, retries).
	LevelWarn
	// LevelError is used for failures that are reported but survived.
	LevelError
	// LevelFatal terminates the process.
	LevelFatal
)

// logLevel is the currently active global level. Messages below it are dropped.
var logLevel = LevelInfo

// SetLogLevel sets the global log level from its string form
// ("DEBUG", "INFO", "WARN", "ERROR", "FATAL", case-insensitive).
// Unknown values fall back to INFO with a warning.
func SetLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel = LevelDebug
	case "INFO":
		logLevel = LevelInfo
	case "WARN":
		logLevel = LevelWarn
	case "ERROR":
		logLevel = LevelError
	case "FATAL":
		logLevel = LevelFatal
	default:
		log.Printf("[WARN] Unknown log level '%s'. Defaulting to INFO.", level)
		logLevel = LevelInfo
	}
}

// Debugf formats and outputs a DEBUG level message.
func Debugf(format string, v ...interface{}) {
	if logLevel <= LevelDebug {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level message.
func Infof(format string, v ...interface{}) {
	if logLevel <= LevelInfo {
		log.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level message.
func Warnf(format string, v ...interface{}) {
	if logLevel <= LevelWarn {
		log.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level message.
func Errorf(format string, v ...interface{}) {
	if logLevel <= LevelError {
		log.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf formats and outputs a FATAL level message, then exits the process.
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
