// Package logging provides the structured logger every cmd/ entrypoint
// constructs once and injects downward — no package in internal/ may
// reach for a global logger or call the standard library log package.
//
// Built on go.uber.org/zap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Development enables human-readable console output with DEBUG
	// level enabled; production uses JSON at INFO level.
	Development bool
}

// New builds a *zap.Logger per cfg. Callers should defer logger.Sync()
// at the top of main().
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Development {
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return zc.Build()
	}
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// Nop returns a logger that discards all output, for tests that don't
// assert on log content.
func Nop() *zap.Logger {
	return zap.NewNop()
}
