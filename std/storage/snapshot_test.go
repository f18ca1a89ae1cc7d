package storage_test

import (
	"testing"

	"github.com/meshworks/meshd/std/storage"
	tu "github.com/meshworks/meshd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	tu.SetT(t)
	src := storage.NewMemoryStore()
	require.NoError(t, src.Update("Net", []byte{0x01, 0x00, 0xaa}))
	require.NoError(t, src.Update("NetKey/1", []byte{0x02}))
	require.NoError(t, src.Update("s/102/bind", []byte{0x01, 0x00}))

	data := tu.NoErr(storage.Export(src))

	dst := storage.NewMemoryStore()
	require.NoError(t, storage.Import(dst, data))
	require.Equal(t, storeDump(t, src), storeDump(t, dst))
}

func TestSnapshotDeterministic(t *testing.T) {
	tu.SetT(t)
	store := storage.NewMemoryStore()
	require.NoError(t, store.Update("Seq", []byte{0x64, 0x00, 0x00}))
	require.NoError(t, store.Update("IV", []byte{0x05, 0x00, 0x00, 0x00, 0x02}))
	require.NoError(t, store.Update("Role", []byte{0x01}))

	first := tu.NoErr(storage.Export(store))
	second := tu.NoErr(storage.Export(store))
	require.Equal(t, first, second)
}

func TestSnapshotBadInput(t *testing.T) {
	tu.SetT(t)
	store := storage.NewMemoryStore()
	require.Error(t, storage.Import(store, []byte{0xff, 0x00, 0x01}))
	require.Empty(t, storeDump(t, store))
}
