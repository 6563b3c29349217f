// Package logger builds the process-wide zap logger. Services take named
// children of it (link.service, scheduler, ...) so log lines carry their
// origin.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at the given level. An empty level
// means info. The logger also replaces zap's globals so stray zap.L calls
// land in the same stream.
func New(level string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = parsed
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}
