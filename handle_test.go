package agentfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleOpenStatReadWrite(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/h.txt", 0644))
	h, err := fs.Open(ctx, "/h.txt")
	require.NoError(t, err)
	defer h.Close()

	path, err := h.Path()
	require.NoError(t, err)
	require.Equal(t, "/h.txt", path)

	n, err := h.Pwrite(ctx, 0, []byte("via handle"))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	data, err := h.Pread(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, "via handle", string(data))

	st, err := h.Stat(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 10, st.Size)
}

func TestHandleReaddirAndTruncate(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/d", 0755))
	require.NoError(t, fs.Create(ctx, "/d/one.txt", 0644))
	require.NoError(t, fs.Create(ctx, "/d/two.txt", 0644))

	h, err := fs.Open(ctx, "/d")
	require.NoError(t, err)
	defer h.Close()

	entries, err := h.Readdir(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	fh, err := fs.Open(ctx, "/d/one.txt")
	require.NoError(t, err)
	defer fh.Close()

	_, err = fh.Pwrite(ctx, 0, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, fh.Truncate(ctx, 4))

	data, err := fh.Pread(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, "0123", string(data))
}

func TestHandleRepathFailsAfterRename(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/old.txt", 0644))
	h, err := fs.Open(ctx, "/old.txt")
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, fs.Rename(ctx, "/old.txt", "/new.txt"))

	// The handle still remembers the path it was opened with; re-resolution
	// against the now-stale path fails since every method re-resolves on
	// each call rather than trusting the cached inode hint.
	_, err = h.Stat(ctx)
	require.True(t, IsNotFound(err))
}

func TestHandleCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Create(ctx, "/x.txt", 0644))
	h, err := fs.Open(ctx, "/x.txt")
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.Stat(ctx)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, InvalidArgument, kind)
}
