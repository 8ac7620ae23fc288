package agentfs

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// HandleID names an open Handle, matching spec.md §6's C-ABI "open(path) →
// handle" shape in Go terms. It carries no information by itself; all state
// lives in the handleTable entry it keys.
type HandleID = uuid.UUID

// handleState is what a Handle actually remembers between calls: the path
// it was opened against, a cached resolution, and the kind observed at open
// time. Per spec.md §5's "Open handles" rule, cachedIno is an optimistic
// hint only — every method re-resolves path before acting and discards the
// hint on mismatch, never trusting it blindly the way a real file
// descriptor would.
type handleState struct {
	path      string
	cachedIno uint64
	isDir     bool
}

// handleTable tracks open handles, keyed by uuid.UUID rather than a dense
// integer counter, since this layer is a pure ergonomic wrapper with no
// kernel-visible handle numbers to economize on.
type handleTable struct {
	mu      sync.RWMutex
	entries map[HandleID]*handleState
}

func newHandleTable() *handleTable {
	return &handleTable{entries: make(map[HandleID]*handleState)}
}

func (t *handleTable) put(id HandleID, st *handleState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = st
}

func (t *handleTable) get(id HandleID) (*handleState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.entries[id]
	return st, ok
}

func (t *handleTable) delete(id HandleID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Handle is an opaque, re-resolving token over a path, the ergonomic
// open/close layer spec.md §4.5 and §6 describe as a thin adapter over the
// Public API — it adds no new core state, only a convenience wrapper that
// host extensions wanting descriptor-like symmetry can use.
type Handle struct {
	fs *FS
	id HandleID
}

// Open resolves path once and returns a Handle remembering it. The
// underlying binding is re-validated on every subsequent call; Open itself
// does nothing a later Stat call wouldn't also re-verify.
func (fs *FS) Open(ctx context.Context, path string) (*Handle, error) {
	st, err := fs.Lstat(ctx, path)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	fs.handles.put(id, &handleState{path: path, cachedIno: st.Ino, isDir: st.IsDir()})
	return &Handle{fs: fs, id: id}, nil
}

// Close releases h. Closing an already-closed or unknown handle is a no-op,
// matching the core's stateless-per-call design: nothing downstream holds a
// reference that needs cleanup beyond the bookkeeping entry itself.
func (h *Handle) Close() error {
	h.fs.handles.delete(h.id)
	return nil
}

// state re-fetches h's bookkeeping entry, translating a closed or unknown
// handle into an InvalidArgument error (EBADF's nearest taxonomy member).
func (h *Handle) state(op string) (*handleState, error) {
	st, ok := h.fs.handles.get(h.id)
	if !ok {
		return nil, newErr(op, "", InvalidArgument, nil)
	}
	return st, nil
}

// Path returns the path h was opened against.
func (h *Handle) Path() (string, error) {
	st, err := h.state("path")
	if err != nil {
		return "", err
	}
	return st.path, nil
}

// Stat re-resolves h's path and returns its current attributes, refreshing
// the handle's cached kind/ino hint.
func (h *Handle) Stat(ctx context.Context) (Stats, error) {
	st, err := h.state("stat")
	if err != nil {
		return Stats{}, err
	}
	stats, err := h.fs.Stat(ctx, st.path)
	if err != nil {
		return Stats{}, err
	}
	st.cachedIno, st.isDir = stats.Ino, stats.IsDir()
	return stats, nil
}

// Pread reads through h's path, exactly like FS.Pread.
func (h *Handle) Pread(ctx context.Context, offset uint64, length int) ([]byte, error) {
	st, err := h.state("read")
	if err != nil {
		return nil, err
	}
	return h.fs.Pread(ctx, st.path, offset, length)
}

// Pwrite writes through h's path, exactly like FS.Pwrite.
func (h *Handle) Pwrite(ctx context.Context, offset uint64, data []byte) (int, error) {
	st, err := h.state("write")
	if err != nil {
		return 0, err
	}
	return h.fs.Pwrite(ctx, st.path, offset, data)
}

// Readdir lists through h's path, exactly like FS.Readdir.
func (h *Handle) Readdir(ctx context.Context) ([]DirEntry, error) {
	st, err := h.state("readdir")
	if err != nil {
		return nil, err
	}
	return h.fs.Readdir(ctx, st.path)
}

// Truncate resizes through h's path, exactly like FS.Truncate.
func (h *Handle) Truncate(ctx context.Context, size uint64) error {
	st, err := h.state("truncate")
	if err != nil {
		return err
	}
	return h.fs.Truncate(ctx, st.path, size)
}
