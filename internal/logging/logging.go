// Package logging builds the zap logger shared by the commands.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Level is a zap level name. Empty means info.
	Level string
	// Quiet raises the level to warn.
	Quiet bool
	// File receives a copy of the log in addition to stderr.
	File string
	// Development switches to the human-readable console encoder.
	Development bool
}

func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if opts.Quiet && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
