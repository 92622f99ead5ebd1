package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/irlightd/internal/db"
)

type sample struct {
	On    bool    `json:"on"`
	Level float64 `json:"level"`
}

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func TestTypedStore_Versions(t *testing.T) {
	ctx := context.Background()
	s := NewTypedStore[sample](openStore(t), "light")

	v, ver, err := s.Get(ctx, "living")
	require.NoError(t, err)
	assert.Equal(t, sample{}, v)
	assert.Zero(t, ver)

	ver, err = s.Set(ctx, "living", sample{On: true, Level: 0.4})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	ver, err = s.Update(ctx, "living", func(cur sample) sample {
		cur.Level = 0.8
		return cur
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	v, ver, err = s.Get(ctx, "living")
	require.NoError(t, err)
	assert.Equal(t, sample{On: true, Level: 0.8}, v)
	assert.Equal(t, int64(2), ver)
}

func TestTypedStore_Dirty(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	lights := NewTypedStore[sample](store, "light")
	other := NewTypedStore[sample](store, "other")

	_, err := lights.Set(ctx, "a", sample{On: true})
	require.NoError(t, err)
	_, err = lights.Set(ctx, "b", sample{On: true})
	require.NoError(t, err)
	_, err = other.Set(ctx, "c", sample{})
	require.NoError(t, err)

	dirty, err := lights.GetDirty(ctx, map[string]int64{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, dirty)

	dirty, err = lights.GetDirty(ctx, map[string]int64{"a": 1, "b": 1})
	require.NoError(t, err)
	assert.Empty(t, dirty)

	_, err = lights.Set(ctx, "b", sample{On: false})
	require.NoError(t, err)
	dirty, err = lights.GetDirty(ctx, map[string]int64{"a": 1, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, dirty)
}

func TestTypedStore_GetAllAndClear(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	lights := NewTypedStore[sample](store, "light")

	_, err := lights.Set(ctx, "a", sample{Level: 0.1})
	require.NoError(t, err)
	_, err = lights.Set(ctx, "b", sample{Level: 0.2})
	require.NoError(t, err)

	values, versions, err := lights.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Equal(t, 0.2, values["b"].Level)
	assert.Equal(t, int64(1), versions["a"])

	require.NoError(t, lights.Delete(ctx, "a"))
	values, _, err = lights.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, values, 1)

	require.NoError(t, store.Clear(ctx, ""))
	values, _, err = lights.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)
}
