package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/data-assistant/internal/store"
)

func TestIdentitySetThenGet(t *testing.T) {
	ctx := context.Background()
	id := NewIdentityContext(newFakeKV(), "", nil)

	assert.Equal(t, "user1", id.Get())
	require.NoError(t, id.Set(ctx, "alice"))
	assert.Equal(t, "alice", id.Get())
}

func TestIdentityStorageFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	logger, logs := observedLogger()
	id := NewIdentityContext(kv, "", logger)

	require.NoError(t, id.Set(ctx, "alice"))
	kv.setFail(true)

	assert.Equal(t, "user1", id.Get())
	assert.Equal(t, 1, logs.FilterMessage("read identity failed, using default").Len())
	assert.Error(t, id.Set(ctx, "bob"))

	kv.setFail(false)
	assert.Equal(t, "alice", id.Get())
}

func TestIdentityNilStorage(t *testing.T) {
	id := NewIdentityContext(nil, "guest", nil)
	assert.Equal(t, "guest", id.Get())
	assert.Error(t, id.Set(context.Background(), "alice"))
}

func TestIdentityRejectsBlank(t *testing.T) {
	id := NewIdentityContext(newFakeKV(), "", nil)
	assert.ErrorIs(t, id.Set(context.Background(), "  "), ErrEmptyIdentity)
}

func TestIdentityTrimsAndIgnoresBlankStoredValue(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.Set(ctx, store.IdentityKey, "   ")
	id := NewIdentityContext(kv, "", nil)
	assert.Equal(t, "user1", id.Get())

	require.NoError(t, id.Set(ctx, "  carol "))
	assert.Equal(t, "carol", id.Get())
}

func TestIdentityPersistsInSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "id.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, NewIdentityContext(s, "", nil).Set(ctx, "alice"))
	s.Close()

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, "alice", NewIdentityContext(s2, "", nil).Get())
}
