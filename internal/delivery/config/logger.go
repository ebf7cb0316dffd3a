package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a production zap logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.Level())

	logger, err := zc.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Named("postman"), nil
}
