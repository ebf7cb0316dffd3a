package couchbase

import (
	"testing"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/stretchr/testify/assert"
)

type doc struct {
	Name string `json:"name"`
}

func TestNewStore_RequiresDeps(t *testing.T) {
	_, err := NewStore[doc](nil, nil)
	assert.Error(t, err)

	_, err = NewStore[doc](&gocb.Cluster{}, nil)
	assert.Error(t, err)
}

func TestNewTransactions_RequiresCluster(t *testing.T) {
	_, err := NewTransactions(nil, time.Second)
	assert.Error(t, err)
}
