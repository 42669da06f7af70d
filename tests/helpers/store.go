package helpers

import (
	"context"
	"testing"

	"github.com/JollyOmnivore/Athena-AI/internal/repository"
)

// NewTestSQLiteStore returns a migrated in-memory store closed on cleanup.
func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
