package vellum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum/config"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDatabase(t *testing.T, path string) *Database {
	t.Helper()
	cfg := config.NewConfig(
		config.WithPath(path),
		config.WithAggregationWindow(time.Hour),
		config.WithChunkSize(16),
	)
	db, err := NewDatabase(context.Background(), WithConfig(cfg))
	require.NoError(t, err)
	return db
}

func syncIndex(t *testing.T, db *Database) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.SyncIndex(ctx))
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		db := openTestDatabase(t, filepath.Join(t.TempDir(), "test_db"))
		defer db.Close()

		assert.NotNil(t, db.Documents())
		assert.NotNil(t, db.Searcher())
		assert.NotNil(t, db.Queue())
		assert.NotNil(t, db.CheckpointRepository())
		assert.NotNil(t, db.Metrics())
		assert.False(t, db.IsClosed())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		db, err := NewDatabase(context.Background(), WithConfig(config.NewConfig(config.WithPath(tmpFile))))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		db, err := NewDatabase(context.Background(), WithConfig(config.NewConfig(config.WithIndex(""))))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	db := openTestDatabase(t, t.TempDir())
	require.NoError(t, db.Close())
	assert.True(t, db.IsClosed())
}

func TestDatabase_DocumentsReachTheIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, t.TempDir())
	defer db.Close()

	var doc *core.Document
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = db.Documents().CreateDocument(ctx, &core.Document{
			DocumentID: "report",
			Facets:     map[string]jsontext.Value{"title": jsontext.Value(`"quarterly figures"`)},
		})
		return err
	})
	require.NoError(t, err)
	syncIndex(t, db)

	hits, err := db.Searcher().Search(ctx, search.Query{Text: "quarterly"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "report", hits[0].ID)

	err = db.WithTransaction(ctx, func(ctx context.Context) error {
		doc.Facets["title"] = jsontext.Value(`"annual figures"`)
		_, err := db.Documents().Update(ctx, doc)
		return err
	})
	require.NoError(t, err)
	syncIndex(t, db)

	hits, err = db.Searcher().Search(ctx, search.Query{Text: "annual"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestDatabase_RollbackIsNotIndexed(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, t.TempDir())
	defer db.Close()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := db.Documents().CreateDocument(ctx, &core.Document{DocumentID: "draft"}); err != nil {
			return err
		}
		return fmt.Errorf("abandoned")
	})
	require.Error(t, err)
	syncIndex(t, db)

	_, err = db.Documents().GetDocument(ctx, "draft")
	assert.ErrorIs(t, err, core.ErrNotFound)
	n, err := db.Searcher().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDatabase_ReopenRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := openTestDatabase(t, dir)
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		for i := range 20 {
			if _, err := db.Documents().CreateDocument(ctx, &core.Document{DocumentID: fmt.Sprintf("doc-%02d", i)}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// The in-memory index is gone; opening rebuilds it from the documents.
	db = openTestDatabase(t, dir)
	defer db.Close()
	syncIndex(t, db)

	n, err := db.Searcher().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	checkpoint, err := db.CheckpointRepository().LoadCheckpoint(ctx, "documents")
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, 20, checkpoint.Documents)

	result, err := db.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Index, result.Previous)
	assert.Equal(t, 20, result.Indexed)
}
