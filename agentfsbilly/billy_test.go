package agentfsbilly

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	agentfs "github.com/agentfs/agentfs"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	fs, err := agentfs.Create(agentfs.Config{Path: ":memory:", Cache: agentfs.DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return New(fs)
}

func TestAdapterCreateWriteReadClose(t *testing.T) {
	a := newTestAdapter(t)

	f, err := a.Create("/hello.txt")
	require.NoError(t, err)
	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, f.Close())

	f2, err := a.Open("/hello.txt")
	require.NoError(t, err)
	defer f2.Close()

	buf := make([]byte, 5)
	n, err = f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
}

func TestAdapterMkdirAllAndReadDir(t *testing.T) {
	a := newTestAdapter(t)

	require.NoError(t, a.MkdirAll("/a/b/c", 0755))

	f, err := a.Create("/a/b/c/file.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	infos, err := a.ReadDir("/a/b/c")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "file.txt", infos[0].Name())
}

func TestAdapterRenameAndRemove(t *testing.T) {
	a := newTestAdapter(t)

	f, err := a.Create("/old.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, a.Rename("/old.txt", "/new.txt"))

	_, err = a.Stat("/old.txt")
	require.Error(t, err)

	info, err := a.Stat("/new.txt")
	require.NoError(t, err)
	require.Equal(t, "new.txt", info.Name())

	require.NoError(t, a.Remove("/new.txt"))
	_, err = a.Stat("/new.txt")
	require.Error(t, err)
}

func TestAdapterSymlink(t *testing.T) {
	a := newTestAdapter(t)

	f, err := a.Create("/target.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, a.Symlink("/target.txt", "/link.txt"))

	target, err := a.Readlink("/link.txt")
	require.NoError(t, err)
	require.Equal(t, "/target.txt", target)

	info, err := a.Lstat("/link.txt")
	require.NoError(t, err)
	require.True(t, info.Mode()&os.ModeSymlink != 0)
}

func TestAdapterSeekAndTruncate(t *testing.T) {
	a := newTestAdapter(t)

	f, err := a.Create("/seek.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	off, err := f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 0, off)

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "0123", string(buf))

	require.NoError(t, f.Truncate(4))
	require.NoError(t, f.Close())

	info, err := a.Stat("/seek.txt")
	require.NoError(t, err)
	require.EqualValues(t, 4, info.Size())
}

func TestAdapterChmodChown(t *testing.T) {
	a := newTestAdapter(t)

	f, err := a.Create("/perm.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, a.Chmod("/perm.txt", 0600))
	info, err := a.Stat("/perm.txt")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode()&0777)

	require.NoError(t, a.Chown("/perm.txt", 1000, 1000))
}

func TestAdapterCapabilities(t *testing.T) {
	a := newTestAdapter(t)
	caps := a.Capabilities()
	require.NotZero(t, caps)
}
