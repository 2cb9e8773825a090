// Package logging provides the structured logger every batchloader
// component writes through: zap-backed, JSON by default, with a
// console/dev mode for local debugging.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Development enables console output and more verbose caller info.
	Development bool
}

// DefaultConfig returns production defaults: info level, JSON output.
func DefaultConfig() Config {
	return Config{Level: "info", Development: false}
}

var (
	fallback     *zap.Logger
	fallbackOnce sync.Once
)

// New builds a scoped logger. A Loader is request-scoped, so each one gets
// its own instance rather than sharing a process-global logger.
func New(cfg Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Development {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}
	return zap.New(core, opts...)
}

// Nop returns a logger that discards everything, used when a host
// application does not wire one in.
func Nop() *zap.Logger {
	fallbackOnce.Do(func() {
		fallback = zap.NewNop()
	})
	return fallback
}
