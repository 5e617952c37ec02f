package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the verbosity of logging
type LogLevel string

const (
	// LevelDebug enables all logs
	LevelDebug LogLevel = "debug"
	// LevelInfo enables info, warning, and error logs (default)
	LevelInfo LogLevel = "info"
	// LevelWarn enables only warning and error logs
	LevelWarn LogLevel = "warn"
	// LevelError enables only error logs
	LevelError LogLevel = "error"
)

// global logger instance
var (
	globalLogger *zap.SugaredLogger
	globalMutex  sync.RWMutex
)

// Config holds logger configuration
type Config struct {
	Level LogLevel
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{Level: LevelInfo}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	logger := createLoggerWithLevel(mapLevelToZapLevel(cfg.Level))

	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalLogger = logger.Sugar()
	return nil
}

// mapLevelToZapLevel maps our log level to zap level
func mapLevelToZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildEncoderConfig creates the encoder configuration for console output
func buildEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// Get returns the global logger
// If not initialized, it initializes with default config
func Get() *zap.SugaredLogger {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()

	if logger != nil {
		return logger
	}

	// Create the default logger without holding the lock, since Init()
	// also acquires it
	loggerToSet := createLoggerWithLevel(mapLevelToZapLevel(DefaultConfig().Level)).Sugar()

	globalMutex.Lock()
	defer globalMutex.Unlock()

	// Check again in case another goroutine initialized while we were creating
	if globalLogger != nil {
		return globalLogger
	}

	globalLogger = loggerToSet
	return globalLogger
}

// createLoggerWithLevel creates a new logger with the given zap level
func createLoggerWithLevel(zapLevel zapcore.Level) *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(buildEncoderConfig())
	writeSyncer := zapcore.AddSync(os.Stdout)
	core := zapcore.NewCore(encoder, writeSyncer, zapLevel)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	Get().Debugw(msg, args...)
}

// Debugf logs a formatted debug message
func Debugf(template string, args ...interface{}) {
	Get().Debugf(template, args...)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	Get().Infow(msg, args...)
}

// Infof logs a formatted info message
func Infof(template string, args ...interface{}) {
	Get().Infof(template, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	Get().Warnw(msg, args...)
}

// Warnf logs a formatted warning message
func Warnf(template string, args ...interface{}) {
	Get().Warnf(template, args...)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	Get().Errorw(msg, args...)
}

// Errorf logs a formatted error message
func Errorf(template string, args ...interface{}) {
	Get().Errorf(template, args...)
}

// With returns a logger with additional fields
func With(args ...interface{}) *zap.SugaredLogger {
	return Get().With(args...)
}

// Sync flushes any buffered log entries
func Sync() error {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Reset resets the global logger (mainly for testing)
func Reset() {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	globalLogger = nil
}
