package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/balltree/blobstore"
	"github.com/hupe1980/balltree/resource"
)

func TestSaveLoadStore(t *testing.T) {
	tree := buildTestTree(t, 90, 4, 2)
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, SaveToStore(ctx, store, "snapshots/v1", tree))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/v1"}, names)

	restored, err := LoadFromStore(ctx, store, "snapshots/v1")
	require.NoError(t, err)
	assertSameTree(t, tree, restored)
}

func TestSaveLoadStoreCodecs(t *testing.T) {
	tree := buildTestTree(t, 40, 2, 2)
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		name := "idx-" + codec.String()
		require.NoError(t, SaveToStore(ctx, store, name, tree, WithStoreCodec(codec)))

		restored, err := LoadFromStore(ctx, store, name)
		require.NoError(t, err, codec.String())
		assertSameTree(t, tree, restored)
	}
}

func TestSaveToStoreWithController(t *testing.T) {
	tree := buildTestTree(t, 60, 3, 2)
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	// A generous limit: the transfer must succeed, just throttled.
	ctrl := resource.NewController(resource.Config{IOLimitBytesPerSec: 64 << 20})

	require.NoError(t, SaveToStore(ctx, store, "v1", tree, WithStoreController(ctrl)))

	restored, err := LoadFromStore(ctx, store, "v1", WithStoreController(ctrl))
	require.NoError(t, err)
	assertSameTree(t, tree, restored)
}

func TestLoadFromStoreMissing(t *testing.T) {
	store := blobstore.NewMemoryStore()
	_, err := LoadFromStore(context.Background(), store, "nope")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
