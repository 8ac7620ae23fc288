package agentfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newSeededTestFS seeds a fresh in-memory database from a host directory,
// mirroring spec.md §8's "seed base with ... (ino=N)" scenario setup.
func newSeededTestFS(t *testing.T, files map[string]string) *FS {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		writeHostFile(t, path, content)
	}
	fs, err := Create(Config{Path: ":memory:", Cache: DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	require.NoError(t, SeedFromDir(fs, root, SeedOptions{}))
	return fs
}

// TestChmodCopyUpPreservesIno is spec.md §8 scenario 2.
func TestChmodCopyUpPreservesIno(t *testing.T) {
	ctx := context.Background()
	fs := newSeededTestFS(t, map[string]string{"b.txt": "x"})

	before, err := fs.Stat(ctx, "/b.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Chmod(ctx, "/b.txt", 0755))

	after, err := fs.Stat(ctx, "/b.txt")
	require.NoError(t, err)
	require.Equal(t, before.Ino, after.Ino)
	require.EqualValues(t, 0755, after.Mode&0777)
}

// TestSetxattrCopyUpPreservesInoAndValue exercises the setxattr copy-up
// trigger and Getxattr/Listxattr against the resulting delta record.
func TestSetxattrCopyUpPreservesInoAndValue(t *testing.T) {
	ctx := context.Background()
	fs := newSeededTestFS(t, map[string]string{"f.txt": "x"})

	before, err := fs.Stat(ctx, "/f.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Setxattr(ctx, "/f.txt", "user.tag", []byte("v1")))

	after, err := fs.Stat(ctx, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, before.Ino, after.Ino)

	value, err := fs.Getxattr(ctx, "/f.txt", "user.tag")
	require.NoError(t, err)
	require.Equal(t, "v1", string(value))

	names, err := fs.Listxattr(ctx, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, []string{"user.tag"}, names)

	require.NoError(t, fs.Removexattr(ctx, "/f.txt", "user.tag"))
	_, err = fs.Getxattr(ctx, "/f.txt", "user.tag")
	require.True(t, IsNotFound(err))
}

// TestDirectoryRenameInvalidatesSubtreeCache is spec.md §8 scenario 4.
func TestDirectoryRenameInvalidatesSubtreeCache(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/olddir", 0755))
	require.NoError(t, fs.Mkdir(ctx, "/olddir/sub", 0755))
	require.NoError(t, fs.Create(ctx, "/olddir/sub/nested.txt", 0644))

	// Warm the cache on all three paths.
	for _, p := range []string{"/olddir", "/olddir/sub", "/olddir/sub/nested.txt"} {
		_, err := fs.Stat(ctx, p)
		require.NoError(t, err)
	}

	require.NoError(t, fs.Rename(ctx, "/olddir", "/newdir"))

	_, err := fs.Stat(ctx, "/olddir/sub/nested.txt")
	require.True(t, IsNotFound(err))

	st, err := fs.Stat(ctx, "/newdir/sub/nested.txt")
	require.NoError(t, err)
	require.NotZero(t, st.Ino)

	for _, key := range fs.cache.Keys() {
		require.NotContains(t, key, "/olddir")
	}
}

// TestUnlinkInvalidatesExactlyOneCacheEntry is spec.md §8 scenario 5.
func TestUnlinkInvalidatesExactlyOneCacheEntry(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/x", 0644))
	_, err := fs.Stat(ctx, "/x")
	require.NoError(t, err)

	before := fs.CacheStats().Entries
	require.NoError(t, fs.Remove(ctx, "/x"))
	after := fs.CacheStats().Entries

	require.Equal(t, before-1, after)

	_, err = fs.Stat(ctx, "/x")
	require.True(t, IsNotFound(err))
}
