package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"postman/internal/couchbase"
	"postman/internal/validator"
)

// Storage is the persistence the Client appends records through.
type Storage interface {
	// GetOffset returns the next free offset of a topic partition. It fails
	// with gocb.ErrDocumentNotFound for a partition that was never written.
	GetOffset(ctx context.Context, topic string, partition int) (uint64, error)

	// CommitOffset advances the partition's next free offset. Offsets never
	// move backwards.
	CommitOffset(topic string, partition int, next uint64) error

	// InsertDocument stores doc. It fails with gocb.ErrDocumentExists when
	// the offset is already taken.
	InsertDocument(ctx context.Context, doc Document) error
}

// Store implements Storage on Couchbase collections. Offsets are committed in
// distributed transactions so concurrent producers never rewind them.
type Store struct {
	documents    *couchbase.Store[Document]
	offsets      *couchbase.Store[Offset]
	transactions *couchbase.Transactions
	bucket       string
	scope        string
	retention    time.Duration
}

// NewStore creates a Store. Documents expire after retention; zero keeps them
// forever.
func NewStore(
	documents *couchbase.Store[Document],
	offsets *couchbase.Store[Offset],
	transactions *couchbase.Transactions,
	bucket, scope string,
	retention time.Duration,
) (*Store, error) {
	s := Store{
		documents:    documents,
		offsets:      offsets,
		transactions: transactions,
		bucket:       bucket,
		scope:        scope,
		retention:    retention,
	}

	if err := validator.Validate(
		"docstore",
		s.documents,
		s.offsets,
		s.transactions,
		s.bucket,
		s.scope,
	); err != nil {
		return nil, fmt.Errorf("failed to validate storage dependencies: %w", err)
	}

	return &s, nil
}

func (s *Store) GetOffset(ctx context.Context, topic string, partition int) (uint64, error) {
	offset, err := s.offsets.Get(ctx, OffsetKey(topic, partition), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get offset: %w", err)
	}

	return offset.N, nil
}

func (s *Store) CommitOffset(topic string, partition int, next uint64) error {
	key := OffsetKey(topic, partition)

	_, err := s.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		for {
			res, err := r.Get(s.offsets, key)
			switch {
			case err == nil:
			case errors.Is(err, gocb.ErrDocumentNotFound):
				_, err := r.Insert(s.offsets, key, Offset{ID: key, N: next})
				switch {
				case err == nil:
					return nil
				case errors.Is(err, gocb.ErrDocumentExists):
					// another producer created it first; read it back
					continue
				default:
					return fmt.Errorf("failed to insert new offset: %w", err)
				}
			default:
				return fmt.Errorf("failed to get offset: %w", err)
			}

			var existing Offset
			if err := res.Content(&existing); err != nil {
				return fmt.Errorf("failed to decode offset: %w", err)
			}
			if next <= existing.N {
				return nil
			}

			existing.N = next
			if _, err := r.Replace(res, existing); err != nil {
				return fmt.Errorf("failed to replace offset: %w", err)
			}
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("failed to commit offset for topic %s partition %d: %w", topic, partition, err)
	}

	return nil
}

func (s *Store) InsertDocument(ctx context.Context, doc Document) error {
	if err := s.documents.Insert(ctx, doc.ID, doc, &gocb.InsertOptions{
		Expiry: s.retention,
	}); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

// LoadDocuments returns up to limit documents of a topic partition starting
// at offset from, in offset order.
func (s *Store) LoadDocuments(ctx context.Context, topic string, partition int, from uint64, limit int) ([]Document, error) {
	statement := fmt.Sprintf(
		"SELECT RAW d FROM `%s`.`%s`.`%s` d "+
			"WHERE d.topic = $topic AND d.`partition` = $partition AND d.`offset` >= $from "+
			"ORDER BY d.`offset` ASC LIMIT $limit",
		s.bucket,
		s.scope,
		s.documents.Collection().Name(),
	)

	docs, err := s.documents.Query(ctx, statement, &gocb.QueryOptions{
		NamedParameters: map[string]any{
			"topic":     topic,
			"partition": partition,
			"from":      from,
			"limit":     limit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	return docs, nil
}
