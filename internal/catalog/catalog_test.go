package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gatebot/internal/storage"
	"gatebot/internal/validate"
	logx "gatebot/pkg/logx"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "c.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(storage.NewOffers(db), logx.Nop())
}

func TestCreateValidatesAndRejectsDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t)

	_, err := c.Create(ctx, "Bad-Key", "Label", "")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = c.Create(ctx, "pack_a", "  ", "")
	require.ErrorIs(t, err, validate.ErrInvalid)

	o, err := c.Create(ctx, "pack_a", "Pack A", "")
	require.NoError(t, err)
	require.True(t, o.Active)
	require.Equal(t, storage.AssetMissing, o.AssetRef)

	_, err = c.Create(ctx, "pack_a", "Again", "F1")
	require.ErrorIs(t, err, ErrKeyTaken)

	ok, err := c.Exists(ctx, "pack_a")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.Exists(ctx, "zz")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveMalformedKeySkipsLookup(t *testing.T) {
	t.Parallel()
	c := newCatalog(t)

	_, err := c.Resolve(context.Background(), "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMutationsAndPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t)

	for _, k := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		_, err := c.Create(ctx, k, "L "+k, "")
		require.NoError(t, err)
	}
	items, total, err := c.Page(ctx, 1, 5)
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Len(t, items, 1)

	require.NoError(t, c.SetAsset(ctx, "a1", "FILE"))
	require.Error(t, c.SetAsset(ctx, "a1", ""))
	require.NoError(t, c.SetActive(ctx, "a1", false))
	o, err := c.Resolve(ctx, "a1")
	require.NoError(t, err)
	require.False(t, o.Active)
	require.True(t, o.HasAsset())

	require.ErrorIs(t, c.SetActive(ctx, "zz", true), ErrNotFound)
	require.NoError(t, c.Delete(ctx, "a1"))
	require.ErrorIs(t, c.Delete(ctx, "a1"), ErrNotFound)
}

func TestPutUpserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t)

	created, err := c.Put(ctx, "seed_me", "First", "")
	require.NoError(t, err)
	require.True(t, created)
	created, err = c.Put(ctx, "seed_me", "Second", "F9")
	require.NoError(t, err)
	require.False(t, created)

	o, err := c.Resolve(ctx, "seed_me")
	require.NoError(t, err)
	require.Equal(t, "Second", o.Label)
	require.Equal(t, "F9", o.AssetRef)
}
