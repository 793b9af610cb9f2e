package authsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load from empty store", func(t *testing.T) {
		store := NewMemoryStore()
		records, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("upsert replaces by group and mac", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Upsert(ctx, liveRecord(testMAC, 1)))

		updated := liveRecord(testMAC, 1)
		updated.Duration = 7200
		require.NoError(t, store.Upsert(ctx, updated))
		require.NoError(t, store.Upsert(ctx, liveRecord(testMAC, 2)))

		assert.Equal(t, 2, store.Len())

		records, err := store.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
	})
}
