package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	body := []byte(`{"data":[]}`)
	require.NoError(t, store.Put(ctx, "raw/2024/01/01/TA/flights.json", body, ContentTypeJSON,
		WithMetadata(map[string]string{"checksum": "abc"})))

	// Mutating the caller's buffer must not change the stored object.
	body[0] = 'X'

	got, err := store.Get(ctx, "raw/2024/01/01/TA/flights.json")
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, string(got))

	obj, ok := store.Object("raw/2024/01/01/TA/flights.json")
	require.True(t, ok)
	assert.Equal(t, ContentTypeJSON, obj.ContentType)
	assert.Equal(t, "abc", obj.Metadata["checksum"])
}

func TestMemoryStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", []byte("first"), ContentTypeCSV))
	require.NoError(t, store.Put(ctx, "k", []byte("second"), ContentTypeCSV))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, []string{"k"}, store.Keys())
}

func TestMemoryStore_NotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemoryStore().Put(ctx, "k", []byte("v"), ContentTypeCSV)

	assert.True(t, errors.Is(err, context.Canceled))
}
