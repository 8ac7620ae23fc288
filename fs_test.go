package agentfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	fs, err := Create(Config{Path: ":memory:", Cache: DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func TestMkdirAndReaddir(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", 0755))
	require.NoError(t, fs.Create(ctx, "/a/b.txt", 0644))
	require.NoError(t, fs.Mkdir(ctx, "/a/c", 0755))

	entries, err := fs.Readdir(ctx, "/a")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	require.ElementsMatch(t, []string{"b.txt", "c"}, names)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/f.txt", 0644))
	n, err := fs.Pwrite(ctx, "/f.txt", 0, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)

	data, err := fs.Pread(ctx, "/f.txt", 0, 100)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	st, err := fs.Stat(ctx, "/f.txt")
	require.NoError(t, err)
	require.EqualValues(t, 11, st.Size)
}

func TestRenamePreservesInoAcrossTopLevelAPI(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/old.txt", 0644))
	before, err := fs.Stat(ctx, "/old.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Rename(ctx, "/old.txt", "/new.txt"))

	after, err := fs.Stat(ctx, "/new.txt")
	require.NoError(t, err)
	require.Equal(t, before.Ino, after.Ino)

	_, err = fs.Stat(ctx, "/old.txt")
	require.True(t, IsNotFound(err))
}

func TestRemoveNonexistentIsNotFound(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	err := fs.Remove(ctx, "/missing.txt")
	require.True(t, IsNotFound(err))
}

func TestCreateExistingIsExists(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/dup.txt", 0644))
	err := fs.Create(ctx, "/dup.txt", 0644)
	require.True(t, IsExists(err))
}

func TestRmdirRequiresEmpty(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/d", 0755))
	require.NoError(t, fs.Create(ctx, "/d/f.txt", 0644))

	err := fs.Rmdir(ctx, "/d")
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, NotEmpty, kind)

	require.NoError(t, fs.Remove(ctx, "/d/f.txt"))
	require.NoError(t, fs.Rmdir(ctx, "/d"))
}

func TestSymlinkReadlink(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/target.txt", 0644))
	require.NoError(t, fs.Symlink(ctx, "/target.txt", "/link.txt"))

	target, err := fs.Readlink(ctx, "/link.txt")
	require.NoError(t, err)
	require.Equal(t, "/target.txt", target)

	_, err = fs.Pwrite(ctx, "/link.txt", 0, []byte("via symlink"))
	require.NoError(t, err)
	data, err := fs.Pread(ctx, "/target.txt", 0, 100)
	require.NoError(t, err)
	require.Equal(t, "via symlink", string(data))
}

func TestStatfsCountsInodesAndBytes(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/f.txt", 0644))
	_, err := fs.Pwrite(ctx, "/f.txt", 0, []byte("abc"))
	require.NoError(t, err)

	res, err := fs.Statfs(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Inodes, uint64(2)) // root + f.txt
	require.EqualValues(t, 3, res.BytesUsed)
}

func TestClearCacheDropsAllEntries(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/f.txt", 0644))
	_, err := fs.Stat(ctx, "/f.txt")
	require.NoError(t, err)

	fs.ClearCache()
	stats := fs.CacheStats()
	require.Equal(t, 0, stats.Entries)
}
