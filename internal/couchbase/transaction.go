package couchbase

import (
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// Transactions runs functions inside Couchbase distributed transactions.
type Transactions struct {
	cluster *gocb.Cluster
	timeout time.Duration
}

// NewTransactions creates a transaction manager for cluster. Each
// transaction, including the SDK's internal retries, is bounded by timeout.
func NewTransactions(cluster *gocb.Cluster, timeout time.Duration) (*Transactions, error) {
	if cluster == nil {
		return nil, errors.New("couchbase cluster cannot be nil")
	}

	return &Transactions{
		cluster: cluster,
		timeout: timeout,
	}, nil
}

// Transaction executes fn in a transaction and returns the transaction ID.
// fn may be invoked several times if the SDK retries the attempt.
func (t *Transactions) Transaction(fn TransactionAttempt) (string, error) {
	opts := gocb.TransactionOptions{
		DurabilityLevel: gocb.DurabilityLevelNone,
		Timeout:         t.timeout,
	}
	run := func(actx *gocb.TransactionAttemptContext) error {
		return fn(&transactionRunner{ctx: actx})
	}

	res, err := t.cluster.Transactions().Run(run, &opts)
	if err != nil {
		return "", fmt.Errorf("failed to run transaction: %w", err)
	}

	return res.TransactionID, nil
}

type transactionRunner struct {
	ctx *gocb.TransactionAttemptContext
}

func (t *transactionRunner) Get(tc TransactionCollection, key string) (*gocb.TransactionGetResult, error) {
	return t.ctx.Get(tc.Collection(), key)
}

func (t *transactionRunner) Insert(tc TransactionCollection, key string, value any) (*gocb.TransactionGetResult, error) {
	return t.ctx.Insert(tc.Collection(), key, value)
}

func (t *transactionRunner) Replace(doc *gocb.TransactionGetResult, value any) (*gocb.TransactionGetResult, error) {
	return t.ctx.Replace(doc, value)
}

// TransactionRunner is the set of document operations available inside a
// transaction.
type TransactionRunner interface {
	Get(tc TransactionCollection, key string) (*gocb.TransactionGetResult, error)
	Insert(tc TransactionCollection, key string, value any) (*gocb.TransactionGetResult, error)
	Replace(doc *gocb.TransactionGetResult, value any) (*gocb.TransactionGetResult, error)
}

// TransactionCollection is anything backed by a collection, such as a Store.
type TransactionCollection interface {
	Collection() *gocb.Collection
}

// TransactionAttempt is the body of a transaction.
type TransactionAttempt func(t TransactionRunner) error
