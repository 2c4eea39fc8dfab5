package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reservo/internal/domain"
	"reservo/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.WarnLevel)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestItem(t *testing.T, db *DB, quantity int64) *models.Item {
	t.Helper()
	item := &models.Item{WorkspaceID: 1, Name: "Camera", Quantity: quantity, IsActive: true}
	require.NoError(t, db.CreateItem(context.Background(), item))
	return item
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_InMemory(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	item := &models.Item{WorkspaceID: 1, Name: "Desk", Quantity: 1, IsActive: true}
	require.NoError(t, db.CreateItem(ctx, item))

	err = db.WithTx(ctx, func(ctx context.Context) error {
		_, err := db.GetItem(ctx, item.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestWithTx(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	item := createTestItem(t, db, 3)

	t.Run("RollbackOnError", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, db.UpdateItemQuantity(ctx, item.ID, 9))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := db.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Quantity)
	})

	t.Run("NestedJoinsOuter", func(t *testing.T) {
		boom := errors.New("outer failed")
		err := db.WithTx(ctx, func(ctx context.Context) error {
			inner := db.WithTx(ctx, func(ctx context.Context) error {
				return db.UpdateItemQuantity(ctx, item.ID, 7)
			})
			require.NoError(t, inner)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := db.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Quantity)
	})

	t.Run("Commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(ctx context.Context) error {
			return db.UpdateItemQuantity(ctx, item.ID, 5)
		})
		require.NoError(t, err)

		got, err := db.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Quantity)
	})
}

func TestItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := &models.Item{WorkspaceID: 4, Name: "Room A", Quantity: 2, WindowStart: "08:00", WindowEnd: "18:00", IsActive: true}
	require.NoError(t, db.CreateItem(ctx, item))
	require.NotZero(t, item.ID)

	got, err := db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "08:00", got.WindowStart)
	assert.Equal(t, "18:00", got.WindowEnd)
	assert.Equal(t, int64(4), got.WorkspaceID)

	_, err = db.GetItem(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, db.UpdateItemQuantity(ctx, 999, 1), domain.ErrNotFound)
	assert.Error(t, db.UpdateItemQuantity(ctx, item.ID, -1))

	assert.Error(t, db.CreateItem(ctx, &models.Item{WorkspaceID: 4, Name: "Bad", Quantity: -2}))

	require.NoError(t, db.CreateItem(ctx, &models.Item{WorkspaceID: 5, Name: "Other", Quantity: 1, IsActive: true}))
	items, err := db.ListItemsByWorkspace(ctx, 4)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Room A", items[0].Name)
}

func TestSeedItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed := []models.Item{
		{ID: 10, WorkspaceID: 1, Name: "Tripod", Quantity: 4, IsActive: true},
		{ID: 11, WorkspaceID: 1, Name: "Mic", Quantity: 2, IsActive: true},
	}
	require.NoError(t, db.SeedItems(ctx, seed))

	seed[0].Quantity = 6
	require.NoError(t, db.SeedItems(ctx, seed))

	got, err := db.GetItem(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Quantity)

	items, err := db.ListItemsByWorkspace(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
