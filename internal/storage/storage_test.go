package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	return Record{
		ID:        uuid.New().String(),
		BufferID:  uuid.New().String(),
		Kind:      "prioritized",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Payload:   json.RawMessage(`{"max_size":8}`),
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := testRecord()
	require.NoError(t, store.Save(ctx, record))

	loaded, err := store.Load(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RequiresID(t *testing.T) {
	store := NewMemoryStore()
	assert.Error(t, store.Save(context.Background(), Record{}))
}

func TestFileStore_SaveLoadList(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first := testRecord()
	second := testRecord()
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, loaded.ID)
	assert.Equal(t, first.Kind, loaded.Kind)
	assert.JSONEq(t, string(first.Payload), string(loaded.Payload))

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_OverwriteKeepsLatest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	record := testRecord()
	require.NoError(t, store.Save(ctx, record))

	record.Payload = json.RawMessage(`{"max_size":16}`)
	require.NoError(t, store.Save(ctx, record))

	loaded, err := store.Load(ctx, record.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_size":16}`, string(loaded.Payload))
}
