// Package logger provides structured JSON logging for notice-watch.
//
// The logger supports four levels (DEBUG, INFO, WARN, ERROR) and writes one
// JSON object per line through zap. Callers attach arbitrary structured fields
// with the Fields map:
//
//	logger.Info("Fetched page", logger.Fields{
//	    "page":    2,
//	    "notices": 10,
//	})
//
//	logger.Error("Delivery failed", logger.Fields{"host": host}, err)
package logger

import (
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel maps a case-insensitive level name to a Level, defaulting to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger provides structured logging
type Logger struct {
	zl *zap.Logger
}

var defaultLogger = New(LevelInfo, os.Stderr)

// New creates a logger that writes JSON lines at or above level to output.
func New(level Level, output io.Writer) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(output),
		level.zapLevel(),
	)
	return &Logger{zl: zap.New(core)}
}

// SetDefault replaces the package-level logger used by Debug, Info, Warn and Error.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{zl: l.zl.With(toZap(fields)...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) Debug(message string, fields Fields) {
	l.zl.Debug(message, toZap(fields)...)
}

func (l *Logger) Info(message string, fields Fields) {
	l.zl.Info(message, toZap(fields)...)
}

func (l *Logger) Warn(message string, fields Fields) {
	l.zl.Warn(message, toZap(fields)...)
}

// Error logs an error message with optional structured fields and an error object.
func (l *Logger) Error(message string, fields Fields, err error) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.String("error", err.Error()))
	}
	l.zl.Error(message, zf...)
}

// toZap converts fields to zap fields in key order so output is stable.
func toZap(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	return zf
}

// Package-level convenience functions using default logger

func Debug(message string, fields Fields) {
	defaultLogger.Debug(message, fields)
}

func Info(message string, fields Fields) {
	defaultLogger.Info(message, fields)
}

func Warn(message string, fields Fields) {
	defaultLogger.Warn(message, fields)
}

func Error(message string, fields Fields, err error) {
	defaultLogger.Error(message, fields, err)
}
