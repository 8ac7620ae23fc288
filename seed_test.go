package agentfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeHostFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestSeedFromDirImportsTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))
	writeHostFile(t, filepath.Join(root, "top.txt"), "top")
	writeHostFile(t, filepath.Join(root, "sub", "nested.txt"), "nested")
	require.NoError(t, os.Symlink("nested.txt", filepath.Join(root, "sub", "link.txt")))

	fs, err := Create(Config{Path: ":memory:", Cache: DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	require.NoError(t, SeedFromDir(fs, root, SeedOptions{}))

	ctx := context.Background()
	data, err := fs.Pread(ctx, "/top.txt", 0, 100)
	require.NoError(t, err)
	require.Equal(t, "top", string(data))

	data, err = fs.Pread(ctx, "/sub/nested.txt", 0, 100)
	require.NoError(t, err)
	require.Equal(t, "nested", string(data))

	target, err := fs.Readlink(ctx, "/sub/link.txt")
	require.NoError(t, err)
	require.Equal(t, "nested.txt", target)

	entries, err := fs.Readdir(ctx, "/sub")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSeedFromDirReservesInoRange(t *testing.T) {
	root := t.TempDir()
	writeHostFile(t, filepath.Join(root, "a.txt"), "a")
	writeHostFile(t, filepath.Join(root, "b.txt"), "b")

	fs, err := Create(Config{Path: ":memory:", Cache: DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	require.NoError(t, SeedFromDir(fs, root, SeedOptions{}))

	ctx := context.Background()
	require.NoError(t, fs.Create(ctx, "/c.txt", 0644))
	statC, err := fs.Stat(ctx, "/c.txt")
	require.NoError(t, err)

	statA, err := fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	statB, err := fs.Stat(ctx, "/b.txt")
	require.NoError(t, err)

	require.Greater(t, statC.Ino, statA.Ino)
	require.Greater(t, statC.Ino, statB.Ino)
}

func TestSeedFromDirGitignoreFiltering(t *testing.T) {
	root := t.TempDir()
	writeHostFile(t, filepath.Join(root, ".gitignore"), "*.log\n")
	writeHostFile(t, filepath.Join(root, "keep.txt"), "keep")
	writeHostFile(t, filepath.Join(root, "drop.log"), "drop")

	fs, err := Create(Config{Path: ":memory:", Cache: DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	require.NoError(t, SeedFromDir(fs, root, SeedOptions{Gitignore: true}))

	ctx := context.Background()
	_, err = fs.Stat(ctx, "/keep.txt")
	require.NoError(t, err)

	_, err = fs.Stat(ctx, "/drop.log")
	require.True(t, IsNotFound(err))

	// .gitignore itself is not special-cased; the importer skips only what
	// its own rules exclude, so .gitignore is imported like any other file.
	_, err = fs.Stat(ctx, "/.gitignore")
	require.NoError(t, err)
}

func TestSeedFromDirExcludesWinOverIncludes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "vendor"), 0755))
	writeHostFile(t, filepath.Join(root, "vendor", "dep.go"), "package vendor")
	writeHostFile(t, filepath.Join(root, "app.go"), "package app")

	fs, err := Create(Config{Path: ":memory:", Cache: DefaultCacheConfig})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	require.NoError(t, SeedFromDir(fs, root, SeedOptions{
		Includes: []string{"vendor"},
		Excludes: []string{"vendor"},
	}))

	ctx := context.Background()
	_, err = fs.Stat(ctx, "/app.go")
	require.NoError(t, err)

	_, err = fs.Stat(ctx, "/vendor")
	require.True(t, IsNotFound(err))
}
