package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentfs/agentfs/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Backend) {
	t.Helper()
	b, err := storage.Create(":memory:", storage.DBContextDefault)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return New(b), b
}

// seedBaseFile writes a base-layer regular file directly, bypassing
// copy-up, the way the Seed Importer does.
func seedBaseFile(t *testing.T, e *Engine, parent uint64, name string, ino uint64, content []byte) {
	t.Helper()
	tx, err := e.Backend.BeginWrite(context.Background())
	require.NoError(t, err)
	rec := &storage.InodeRecord{
		Mode: storage.ModeFile | 0644, Nlink: 1, Size: uint64(len(content)),
		Provenance: storage.ProvenanceBase,
	}
	require.NoError(t, e.PutInode(tx, storage.LayerBase, ino, rec))
	require.NoError(t, e.writeChunks(tx, storage.LayerBase, ino, content))
	require.NoError(t, e.PutDirEntry(tx, storage.LayerBase, parent, name, ino))
	require.NoError(t, tx.Commit())
}

func TestWriteCopyUpPreservesIno(t *testing.T) {
	e, _ := newTestEngine(t)
	const ino = 5
	seedBaseFile(t, e, storage.RootIno, "a.txt", ino, []byte("hello"))

	tx, err := e.Backend.BeginWrite(context.Background())
	require.NoError(t, err)

	rec, layer, err := e.GetInode(tx, ino)
	require.NoError(t, err)
	require.Equal(t, storage.LayerBase, layer)

	copiedUp, err := e.EnsureDelta(tx, ino)
	require.NoError(t, err)
	require.True(t, copiedUp)

	newSize, err := e.WriteContent(tx, storage.LayerDelta, ino, rec.Size, 5, []byte(" world"))
	require.NoError(t, err)
	rec.Size = newSize
	require.NoError(t, e.PutInode(tx, storage.LayerDelta, ino, rec))
	require.NoError(t, tx.Commit())

	tx2, err := e.Backend.BeginRead(context.Background())
	require.NoError(t, err)
	defer tx2.Abort()

	rec2, layer2, err := e.GetInode(tx2, ino)
	require.NoError(t, err)
	require.Equal(t, storage.LayerDelta, layer2)
	require.Equal(t, storage.ProvenanceCopiedUp, rec2.Provenance)
	require.EqualValues(t, ino, rec2.OriginIno)

	data, err := e.ReadContent(tx2, storage.LayerDelta, ino, rec2.Size, 0, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestRenamePreservesIno(t *testing.T) {
	e, _ := newTestEngine(t)
	const ino = 9
	seedBaseFile(t, e, storage.RootIno, "old.txt", ino, []byte("x"))

	tx, err := e.Backend.BeginWrite(context.Background())
	require.NoError(t, err)
	srcIno, err := e.Rename(tx, storage.RootIno, "old.txt", storage.RootIno, "new.txt")
	require.NoError(t, err)
	require.EqualValues(t, ino, srcIno)
	require.NoError(t, tx.Commit())

	tx2, err := e.Backend.BeginRead(context.Background())
	require.NoError(t, err)
	defer tx2.Abort()

	binding, err := e.LookupChild(tx2, storage.RootIno, "old.txt")
	require.NoError(t, err)
	require.False(t, binding.Found)

	dst, err := e.LookupChild(tx2, storage.RootIno, "new.txt")
	require.NoError(t, err)
	require.True(t, dst.Found)
	require.EqualValues(t, ino, dst.Ino)
}

func TestReadDirUnionWhiteoutAndOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	seedBaseFile(t, e, storage.RootIno, "a", 10, nil)
	seedBaseFile(t, e, storage.RootIno, "b", 11, nil)
	seedBaseFile(t, e, storage.RootIno, "c", 12, nil)

	tx, err := e.Backend.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = e.CreateChild(tx, storage.RootIno, "d", storage.ModeFile|0644, 0, 0, 0)
	require.NoError(t, err)
	_, _, err = e.Unlink(tx, storage.RootIno, "b")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := e.Backend.BeginRead(context.Background())
	require.NoError(t, err)
	defer tx2.Abort()

	names, err := e.ReadDir(tx2, storage.RootIno)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d"}, names)
}

func TestUnlinkDropsInodeAtZeroNlink(t *testing.T) {
	e, _ := newTestEngine(t)
	tx, err := e.Backend.BeginWrite(context.Background())
	require.NoError(t, err)
	ino, err := e.CreateChild(tx, storage.RootIno, "x", storage.ModeFile|0644, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := e.Backend.BeginWrite(context.Background())
	require.NoError(t, err)
	removed, destroyed, err := e.Unlink(tx2, storage.RootIno, "x")
	require.NoError(t, err)
	require.Equal(t, ino, removed)
	require.True(t, destroyed)
	require.NoError(t, tx2.Commit())

	tx3, err := e.Backend.BeginRead(context.Background())
	require.NoError(t, err)
	defer tx3.Abort()
	_, _, err = e.GetInode(tx3, ino)
	require.ErrorIs(t, err, ErrNotFound)
}
