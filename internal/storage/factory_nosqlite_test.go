//go:build !sqlite

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStoreSQLiteUnavailable(t *testing.T) {
	_, err := NewStore(KindSQLite, "rulevo.db")
	assert.Error(t, err, "sqlite needs the sqlite build tag")
	assert.Equal(t, KindMemory, DefaultStoreKind())
}
