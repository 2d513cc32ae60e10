package filestore

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheBase64AndRetrieve(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	payload := []byte("fake png bytes")
	b64 := base64.StdEncoding.EncodeToString(payload)

	id, err := store.CacheBase64(ctx, b64, "image/png")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.GetBytes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	dataURL, err := store.GetImageDataURL(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, dataURL, "data:image/png;base64,")
}

func TestCacheTextAndReloadIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	id, err := store.CacheText(ctx, "large tool output")
	require.NoError(t, err)

	reloaded, err := New(dir)
	require.NoError(t, err)
	text, err := reloaded.GetText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "large tool output", text)
}

func TestGetBytes_UnknownFileID(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.GetBytes(context.Background(), "missing")
	assert.Error(t, err)
}
