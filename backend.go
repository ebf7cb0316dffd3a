package postman

import (
	"fmt"

	"go.uber.org/zap"

	"postman/internal/delivery/config"
	"postman/internal/delivery/docstore"
	"postman/internal/delivery/kafka"
)

// ClientFactory opens the broker connection for a validated config.
type ClientFactory func(cfg Config, logger *zap.Logger) (Client, error)

// NewClient opens the backend named by cfg.Backend.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	switch cfg.Backend {
	case config.BackendKafka:
		return kafka.New(cfg, logger)
	case config.BackendCouchbase:
		store, disconnect, err := docstore.Connect(cfg)
		if err != nil {
			return nil, err
		}
		client, err := docstore.NewClient(store, cfg.Couchbase.Partitions, logger, docstore.WithCloser(disconnect))
		if err != nil {
			_ = disconnect()
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
