// Package applog provides the structured logger every component of the
// conference core logs through, instead of the standard library log package.
package applog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging interface passed down into every component that
// needs to report connection lifecycle, negotiation, or codec/device errors.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, err error, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	z *zap.Logger
}

var _ Logger = (*zapLogger)(nil)

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }

func (l *zapLogger) Error(msg string, err error, fields ...zap.Field) {
	l.z.Error(msg, append(fields, zap.Error(err))...)
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

// NewConsole builds a development-friendly console logger.
func NewConsole(debug bool) Logger {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	return &zapLogger{z: z}
}

// NewRotatingFile builds a JSON logger that rotates through lumberjack, for
// long-running desktop sessions that should not grow an unbounded log file.
func NewRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) Logger {
	hook := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(hook),
		zapcore.DebugLevel,
	)
	z := zap.New(core, zap.AddCallerSkip(1))
	return &zapLogger{z: z}
}

// Noop returns a Logger that discards everything, for tests.
func Noop() Logger {
	return &zapLogger{z: zap.NewNop()}
}
