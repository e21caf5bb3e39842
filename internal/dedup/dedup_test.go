package dedup_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"meta-pixel-relay/internal/dedup"
	"meta-pixel-relay/internal/model"
)

func TestRequestScopeLatchesPerEventType(t *testing.T) {
	scope := dedup.NewRequestScope()

	require.True(t, scope.FirstFire(model.ViewContent))
	require.False(t, scope.FirstFire(model.ViewContent))
	require.False(t, scope.FirstFire(model.ViewContent))

	// Other event types are independent.
	require.True(t, scope.FirstFire(model.PageView))
}

func TestRequestScopesAreIndependent(t *testing.T) {
	a := dedup.NewRequestScope()
	b := dedup.NewRequestScope()

	require.True(t, a.FirstFire(model.AddToCart))
	require.True(t, b.FirstFire(model.AddToCart))
}

func TestMemoryMarkerStore(t *testing.T) {
	store := dedup.NewMemoryMarkerStore()

	tracked, err := store.Tracked(42)
	require.NoError(t, err)
	require.False(t, tracked)

	require.NoError(t, store.MarkTracked(42))

	tracked, err = store.Tracked(42)
	require.NoError(t, err)
	require.True(t, tracked)

	tracked, err = store.Tracked(43)
	require.NoError(t, err)
	require.False(t, tracked)
}
