// Package logger builds the shared zap logger for the server and CLI.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger. JSON encoding is used for server runs;
// console encoding reads better for CLI use. Debug lifts the level.
func New(json bool, debug bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"

	if json {
		encoding = "json"
	}
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "msg",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}
	return cfg.Build()
}

// WithOperation attaches the standard operation and user fields. A nil
// logger degrades to a no-op so call sites never have to check.
func WithOperation(log *zap.Logger, operation, userID string) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	fields := make([]zap.Field, 0, 2)
	if operation != "" {
		fields = append(fields, zap.String("operation", operation))
	}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	return log.With(fields...)
}
