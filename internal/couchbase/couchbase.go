// Package couchbase provides a typed wrapper over a Couchbase collection and
// its cluster's distributed transactions.
package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// Store is a typed view of one collection. Concurrent updates go through
// Transactions rather than CAS checks.
type Store[T any] struct {
	cluster    *gocb.Cluster
	collection *gocb.Collection
}

// NewStore creates a Store for collection.
func NewStore[T any](cluster *gocb.Cluster, collection *gocb.Collection) (*Store[T], error) {
	if cluster == nil || collection == nil {
		return nil, errors.New("invalid couchbase parameters: cluster and collection must not be nil")
	}

	return &Store[T]{
		cluster:    cluster,
		collection: collection,
	}, nil
}

// Insert creates the document. It fails with gocb.ErrDocumentExists when the
// key is taken.
func (s *Store[T]) Insert(ctx context.Context, key string, value T, opts *gocb.InsertOptions) error {
	if opts == nil {
		opts = new(gocb.InsertOptions)
	}
	opts.Context = ctx

	if _, err := s.collection.Insert(key, value, opts); err != nil {
		return fmt.Errorf("failed to insert document with key %s: %w", key, err)
	}

	return nil
}

// Get reads and decodes the document stored at key.
func (s *Store[T]) Get(ctx context.Context, key string, opts *gocb.GetOptions) (*T, error) {
	if opts == nil {
		opts = new(gocb.GetOptions)
	}
	opts.Context = ctx

	res, err := s.collection.Get(key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get document with key %s: %w", key, err)
	}

	var v T
	if err := res.Content(&v); err != nil {
		return nil, fmt.Errorf("failed to parse document content for key %s: %w", key, err)
	}

	return &v, nil
}

// Query runs a SQL++ statement and decodes every row into T.
func (s *Store[T]) Query(ctx context.Context, statement string, opts *gocb.QueryOptions) ([]T, error) {
	if opts == nil {
		opts = new(gocb.QueryOptions)
	}
	opts.Context = ctx

	result, err := s.cluster.Query(statement, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer result.Close()

	var items []T
	for result.Next() {
		var item T
		if err := result.Row(&item); err != nil {
			return nil, fmt.Errorf("failed to parse query row: %w", err)
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query results: %w", err)
	}

	return items, nil
}

// Collection returns the underlying collection, e.g. for use in a
// transaction.
func (s *Store[T]) Collection() *gocb.Collection {
	return s.collection
}
