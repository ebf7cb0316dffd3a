package docstore

import (
	"fmt"

	"github.com/couchbase/gocb/v2"

	"postman/internal/couchbase"
	"postman/internal/delivery/config"
)

const offsetsCollection = "offsets"

// Connect opens the cluster described by cfg and returns a Store on it along
// with a function that disconnects.
func Connect(cfg config.Config) (*Store, func() error, error) {
	cb := cfg.Couchbase

	cluster, err := gocb.Connect(cb.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cb.Username,
			Password: cb.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: cfg.ConnectTimeout,
			KVTimeout:      cfg.AckTimeout,
			QueryTimeout:   cfg.SocketTimeout,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	disconnect := func() error { return cluster.Close(nil) }

	bucket := cluster.Bucket(cb.Bucket)
	if err := bucket.WaitUntilReady(cfg.ConnectTimeout, nil); err != nil {
		_ = disconnect()
		return nil, nil, fmt.Errorf("bucket not ready: %w", err)
	}

	scope := bucket.Scope(cb.Scope)
	documents, err := couchbase.NewStore[Document](cluster, scope.Collection(cb.Collection))
	if err != nil {
		_ = disconnect()
		return nil, nil, fmt.Errorf("failed to create documents store: %w", err)
	}
	offsets, err := couchbase.NewStore[Offset](cluster, scope.Collection(offsetsCollection))
	if err != nil {
		_ = disconnect()
		return nil, nil, fmt.Errorf("failed to create offsets store: %w", err)
	}
	transactions, err := couchbase.NewTransactions(cluster, cfg.AckTimeout)
	if err != nil {
		_ = disconnect()
		return nil, nil, fmt.Errorf("failed to create transactions: %w", err)
	}

	store, err := NewStore(documents, offsets, transactions, cb.Bucket, cb.Scope, cb.Retention)
	if err != nil {
		_ = disconnect()
		return nil, nil, err
	}

	return store, disconnect, nil
}
