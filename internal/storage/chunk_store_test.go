package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/minesim/internal/vec"
	"github.com/annel0/minesim/internal/world"
)

func setupTestStore(t *testing.T) *ChunkStore {
	t.Helper()
	store, err := NewChunkStore(filepath.Join(t.TempDir(), "world"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func smallRegion(rx, rz int) *world.Region {
	g := world.NewGenerator(5)
	g.Height = 32
	r := world.NewRegion(rx, rz, g.MinY, g.Height)
	for cz := 0; cz < 2; cz++ {
		for cx := 0; cx < 2; cx++ {
			_ = r.SetChunk(g.GenerateChunk(rx*world.RegionChunks+cx, rz*world.RegionChunks+cz))
		}
	}
	return r
}

func TestSaveAndOpenRegion(t *testing.T) {
	store := setupTestStore(t)
	r := smallRegion(1, -1)
	r.Chunks()[0].Set(3, -60, 4, world.DiamondOre)

	require.NoError(t, store.SaveRegion(r, 5))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"r.1.-1.rgn"}, names)

	header, err := store.Header("r.1.-1.rgn")
	require.NoError(t, err)
	assert.Equal(t, 4, header.Chunks)
	assert.Equal(t, int64(5), header.Seed)

	loaded, err := store.Open("r.1.-1.rgn")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.X)
	assert.Equal(t, -1, loaded.Z)
	require.Len(t, loaded.Chunks(), 4)

	// Все блоки совпадают с исходным регионом
	for _, c := range r.Chunks() {
		lc, err := loaded.Chunk(c.X, c.Z)
		require.NoError(t, err)
		for y := c.MinY; y < c.MinY+c.Height; y++ {
			for z := 0; z < world.ChunkSize; z++ {
				for x := 0; x < world.ChunkSize; x++ {
					require.Equal(t, c.Get(x, y, z), lc.Get(x, y, z))
				}
			}
		}
	}

	origin := loaded.Origin()
	id, err := loaded.BlockAt(vec.Vec3{X: origin.X + 3, Y: -60, Z: origin.Z + 4})
	require.NoError(t, err)
	assert.Equal(t, world.DiamondOre, id)
}

func TestSaveRegionReplacesChunks(t *testing.T) {
	store := setupTestStore(t)
	r := smallRegion(0, 0)
	require.NoError(t, store.SaveRegion(r, 1))

	smaller := world.NewRegion(0, 0, r.MinY, r.Height)
	require.NoError(t, smaller.SetChunk(r.Chunks()[0]))
	require.NoError(t, store.SaveRegion(smaller, 1))

	loaded, err := store.Open("r.0.0.rgn")
	require.NoError(t, err)
	assert.Len(t, loaded.Chunks(), 1)
}

func TestOpenMissingRegion(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Open("r.9.9.rgn")
	assert.ErrorIs(t, err, ErrRegionNotFound)
}

func TestDeleteRegion(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.SaveRegion(smallRegion(0, 0), 1))
	require.NoError(t, store.SaveRegion(smallRegion(0, 1), 1))

	require.NoError(t, store.DeleteRegion("r.0.0.rgn"))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"r.0.1.rgn"}, names)
}

func TestImportDir(t *testing.T) {
	dir := world.RegionDir{Path: t.TempDir()}
	for _, r := range []*world.Region{smallRegion(0, 0), smallRegion(-1, 0)} {
		require.NoError(t, world.WriteRegionFile(filepath.Join(dir.Path, r.Name), r, 5))
	}

	store := setupTestStore(t)
	n, err := store.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"r.-1.0.rgn", "r.0.0.rgn"}, names)

	header, err := store.Header("r.-1.0.rgn")
	require.NoError(t, err)
	assert.Equal(t, int64(5), header.Seed)
}

func TestClosedStore(t *testing.T) {
	store, err := NewChunkStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.List()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, store.SaveRegion(smallRegion(0, 0), 0), ErrNotReady)
}
