package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveOpenRoundTrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc123", []byte(`{"v":1}`)))

	data, ok, err := store.Open(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"v":1}`), data)

	_, ok, err = store.Open(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalStore_OverwriteReplacesEntry(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "key", []byte("old")))
	require.NoError(t, store.Save(ctx, "key", []byte("new")))

	data, ok, err := store.Open(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), data)
}

func TestLocalStore_ListAndClear(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "one", []byte("1")))
	require.NoError(t, store.Save(ctx, "two", []byte("2")))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"one", "two"}, keys)

	require.NoError(t, store.Clear(ctx))
	keys, err = store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestLocalStore_RejectsTraversalKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, store.Save(ctx, "../escape", []byte("x")))
	require.Error(t, store.Save(ctx, "a/b", []byte("x")))
	require.Error(t, store.Save(ctx, "", []byte("x")))
}

func TestLocalStore_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "never-written"))
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("ftp", nil)
	require.Error(t, err)
}
