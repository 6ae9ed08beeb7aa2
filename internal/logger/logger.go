// Package logger configures the process-wide zap logger.  Components
// take a *zap.Logger in their constructors and fall back to the
// default instance held here when none is injected; this package
// decides encoding and level from the environment.  The default is a
// no-op until the entrypoint installs a real logger with Set, so
// library use without Set stays silent.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log = zap.NewNop()

// New builds a logger for the given environment.  "prod" selects the
// JSON production config with ISO8601 timestamps; anything else gets
// the coloured development config.  LOG_LEVEL overrides the level.
func New(env string) *zap.Logger {
	var cfg zap.Config
	if env == "prod" || env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(level)
		}
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Get returns the default logger, used by components constructed
// without an injected logger.
func Get() *zap.Logger { return log }

// Set replaces the default logger.  Called once by the entrypoint.
func Set(l *zap.Logger) { log = l }
