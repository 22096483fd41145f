package relationships

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	store := NewMemorySessionStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	first, err := store.Open(ctx, "first")
	require.NoError(t, err)
	second, err := store.Open(ctx, "second")
	require.NoError(t, err)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Same(t, first, got)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Same(t, first, list[0])
	assert.Same(t, second, list[1])

	closed, err := store.Close(ctx, first.ID)
	require.NoError(t, err)
	assert.Same(t, first, closed)

	_, err = store.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Close(ctx, first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStore_OpenHonoursCancelledContext(t *testing.T) {
	store := NewMemorySessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Open(ctx, "late")
	assert.ErrorIs(t, err, context.Canceled)
}
