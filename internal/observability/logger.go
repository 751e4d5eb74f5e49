// Package observability builds the zap logger every component receives.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dusk-indust/jide/internal/config"
)

// ServiceName is the root logger name.
const ServiceName = "jide"

// New builds a logger writing to console (stderr by default) and, when
// cfg.File is set, to a rotated JSON log file.
func New(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	if console == nil {
		console = zapcore.Lock(os.Stderr)
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format), console, level)}

	if cfg.File != "" {
		// lumberjack handles rotation and concurrent writes.
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
		cores = append(cores, zapcore.NewCore(encoder("json"), fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named(ServiceName)
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if format == "json" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}
