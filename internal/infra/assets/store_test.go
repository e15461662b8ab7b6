//go:build unit

package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RemoveReservationAssets(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root)
	id, other := uuid.New(), uuid.New()

	for _, rid := range []uuid.UUID{id, other} {
		require.NoError(t, os.MkdirAll(store.Dir(rid), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(rid), "poster.png"), []byte("png"), 0o600))
	}

	require.NoError(t, store.RemoveReservationAssets(context.Background(), id))
	assert.NoDirExists(t, store.Dir(id))
	assert.DirExists(t, store.Dir(other))

	// nothing left to remove
	assert.NoError(t, store.RemoveReservationAssets(context.Background(), id))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.RemoveReservationAssets(ctx, other), context.Canceled)
	assert.DirExists(t, store.Dir(other))
}
