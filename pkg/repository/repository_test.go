package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/repository/firestore"
	"github.com/nik45114/kbcore/pkg/repository/memory"
	"github.com/nik45114/kbcore/pkg/repository/sqlite"
)

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newSQLiteRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	repo, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "kb.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	// Standard collection names so that the migrated composite indexes apply.
	// Tests isolate their data through random ids and question keys.
	repo, err := firestore.New(ctx, projectID, databaseID)
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

// backends runs fn once per repository implementation
func backends(t *testing.T, fn func(t *testing.T, newRepo func(t *testing.T) interfaces.Repository)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryRepository) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteRepository) })
	t.Run("firestore", func(t *testing.T) { fn(t, newFirestoreRepository) })
}
