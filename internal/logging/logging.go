// Package logging wraps a package-level zap.Logger configured the way
// raibid-ci's services have always configured it: ISO8601 timestamps,
// color level encoding in development, JSON in production.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// Format selects the zap encoder.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Init builds the package-level logger. level is one of zap's level
// names ("debug", "info", "warn", "error"); format selects text vs json.
func Init(level string, format Format) error {
	var cfg zap.Config
	if format == FormatJSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	built, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}
	log = built
	return nil
}

// L returns the global logger, building a development default if Init
// hasn't run yet (handy in tests).
func L() *zap.Logger {
	if log == nil {
		log, _ = zap.NewDevelopment()
	}
	return log
}

func Info(msg string, fields ...zapcore.Field)  { L().Info(msg, fields...) }
func Debug(msg string, fields ...zapcore.Field) { L().Debug(msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { L().Warn(msg, fields...) }

func Error(msg string, err error, fields ...zapcore.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Error(msg, fields...)
}

// With returns a child logger carrying the given fields on every call.
func With(fields ...zapcore.Field) *zap.Logger { return L().With(fields...) }

// Sync flushes any buffered log entries.
func Sync() error { return L().Sync() }
