package memory

import (
	"context"
	"testing"
	"time"

	"funcapp-deploy/internal/core/funcapp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	second := &funcapp.Deployment{ID: "b", AppName: "two", Status: funcapp.StatusPending, CreatedAt: now.Add(time.Second)}
	first := &funcapp.Deployment{ID: "a", AppName: "one", Status: funcapp.StatusPending, CreatedAt: now}
	require.NoError(t, s.Create(ctx, second))
	require.NoError(t, s.Create(ctx, first))

	// Stored values are copies.
	first.Status = funcapp.StatusFailed
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, funcapp.StatusPending, got.Status)

	require.NoError(t, s.Save(ctx, first))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, funcapp.StatusFailed, got.Status)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, funcapp.ErrNotFound)
}
