// Package overlay implements the Inode Table, Directory Store, and
// Overlay/Copy-up Engine of spec.md §4.2-4.3 on top of a
// storage.Backend transaction. Every method here takes an already-open
// *storage.Tx; transaction lifetime and retry belong to the caller (the
// Public API in the root agentfs package).
package overlay

import (
	"fmt"
	"sort"

	"github.com/agentfs/agentfs/internal/storage"
)

// Engine wires the typed key builders in internal/storage onto a single
// backend. It holds no per-call state; every method takes the transaction
// to operate in explicitly, so an Engine value is safe to share across
// concurrent transactions.
type Engine struct {
	Backend *storage.Backend
}

// New returns an Engine bound to backend.
func New(backend *storage.Backend) *Engine {
	return &Engine{Backend: backend}
}

// Errors returned by the overlay engine. The root agentfs package maps
// these onto the ErrorKind taxonomy; overlay itself only deals in these
// sentinels plus wrapped storage errors.
var (
	ErrNotFound        = fmt.Errorf("overlay: not found")
	ErrExists          = fmt.Errorf("overlay: already exists")
	ErrNotDirectory    = fmt.Errorf("overlay: not a directory")
	ErrIsDirectory     = fmt.Errorf("overlay: is a directory")
	ErrNotEmpty        = fmt.Errorf("overlay: directory not empty")
	ErrNotSupported    = fmt.Errorf("overlay: operation not supported")
	ErrInvalidArgument = fmt.Errorf("overlay: invalid argument")
)

// GetInode loads the current-view inode record for ino: the delta record
// if one exists, else the base record (spec.md §4.3's read path rule).
// layer reports which layer actually served the record.
func (e *Engine) GetInode(tx *storage.Tx, ino uint64) (*storage.InodeRecord, storage.Layer, error) {
	if buf, ok, err := tx.Get(storage.InodeKey(storage.LayerDelta, ino)); err != nil {
		return nil, "", err
	} else if ok {
		rec, err := storage.DecodeInodeRecord(buf)
		if err != nil {
			return nil, "", err
		}
		return rec, storage.LayerDelta, nil
	}
	buf, ok, err := tx.Get(storage.InodeKey(storage.LayerBase, ino))
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrNotFound
	}
	rec, err := storage.DecodeInodeRecord(buf)
	if err != nil {
		return nil, "", err
	}
	return rec, storage.LayerBase, nil
}

// PutInode writes rec at ino in layer.
func (e *Engine) PutInode(tx *storage.Tx, layer storage.Layer, ino uint64, rec *storage.InodeRecord) error {
	return tx.Put(storage.InodeKey(layer, ino), rec.Encode())
}

// DeleteInode removes the inode record at ino in layer (used when nlink
// drops to zero).
func (e *Engine) DeleteInode(tx *storage.Tx, layer storage.Layer, ino uint64) error {
	return tx.Delete(storage.InodeKey(layer, ino))
}

// NextIno allocates and persists the next inode id, advancing
// META/next_ino. Must be called inside a write transaction.
func (e *Engine) NextIno(tx *storage.Tx) (uint64, error) {
	buf, ok, err := tx.Get(storage.MetaKey("next_ino"))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: META/next_ino missing", ErrNotFound)
	}
	next, err := storage.DecodeU64(buf)
	if err != nil {
		return 0, err
	}
	if err := tx.Put(storage.MetaKey("next_ino"), storage.EncodeU64(next+1)); err != nil {
		return 0, err
	}
	return next, nil
}

// dirBinding is a single resolved child lookup: the inode id, whether it
// came from the delta or the base, and whether the binding was hidden by
// a whiteout (in which case Found is false).
type dirBinding struct {
	Ino   uint64
	Layer storage.Layer
	Found bool
}

// LookupChild resolves a single (parent, name) step: delta entry wins over
// base entry, and a whiteout on the name hides any base entry.
func (e *Engine) LookupChild(tx *storage.Tx, parent uint64, name string) (dirBinding, error) {
	if buf, ok, err := tx.Get(storage.DirKey(storage.LayerDelta, parent, name)); err != nil {
		return dirBinding{}, err
	} else if ok {
		ino, err := storage.DecodeU64(buf)
		if err != nil {
			return dirBinding{}, err
		}
		return dirBinding{Ino: ino, Layer: storage.LayerDelta, Found: true}, nil
	}

	if _, whited, err := tx.Get(storage.WhiteKey(parent, name)); err != nil {
		return dirBinding{}, err
	} else if whited {
		return dirBinding{}, nil
	}

	if buf, ok, err := tx.Get(storage.DirKey(storage.LayerBase, parent, name)); err != nil {
		return dirBinding{}, err
	} else if ok {
		ino, err := storage.DecodeU64(buf)
		if err != nil {
			return dirBinding{}, err
		}
		return dirBinding{Ino: ino, Layer: storage.LayerBase, Found: true}, nil
	}

	return dirBinding{}, nil
}

// ReadDir returns the union listing of parent per spec.md §4.2: base
// entries minus whiteouts, unioned with delta entries (delta wins on name
// collision), in lexicographic order. "." and ".." are not included; the
// Public API synthesizes them.
func (e *Engine) ReadDir(tx *storage.Tx, parent uint64) ([]string, error) {
	baseRows, err := tx.ScanPrefix(storage.DirPrefix(storage.LayerBase, parent))
	if err != nil {
		return nil, err
	}
	deltaRows, err := tx.ScanPrefix(storage.DirPrefix(storage.LayerDelta, parent))
	if err != nil {
		return nil, err
	}
	whiteRows, err := tx.ScanPrefix(storage.WhitePrefix(parent))
	if err != nil {
		return nil, err
	}

	whited := make(map[string]struct{}, len(whiteRows))
	whitePrefix := storage.WhitePrefix(parent)
	for _, r := range whiteRows {
		whited[storage.DirNameFromKey(r.Key, whitePrefix)] = struct{}{}
	}

	names := make(map[string]struct{})
	basePrefix := storage.DirPrefix(storage.LayerBase, parent)
	for _, r := range baseRows {
		name := storage.DirNameFromKey(r.Key, basePrefix)
		if _, hidden := whited[name]; hidden {
			continue
		}
		names[name] = struct{}{}
	}
	deltaPrefix := storage.DirPrefix(storage.LayerDelta, parent)
	for _, r := range deltaRows {
		names[storage.DirNameFromKey(r.Key, deltaPrefix)] = struct{}{}
	}

	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// HasChildren reports whether parent's logical listing is non-empty, by
// building the full union listing with ReadDir (used by rmdir/rename's
// ENOTEMPTY check).
func (e *Engine) HasChildren(tx *storage.Tx, parent uint64) (bool, error) {
	names, err := e.ReadDir(tx, parent)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// PutDirEntry writes (parent, name) -> child in layer.
func (e *Engine) PutDirEntry(tx *storage.Tx, layer storage.Layer, parent uint64, name string, child uint64) error {
	return tx.Put(storage.DirKey(layer, parent, name), storage.EncodeU64(child))
}

// DeleteDirEntry removes (parent, name) from layer.
func (e *Engine) DeleteDirEntry(tx *storage.Tx, layer storage.Layer, parent uint64, name string) error {
	return tx.Delete(storage.DirKey(layer, parent, name))
}

// PutWhiteout records that name under parent is hidden.
func (e *Engine) PutWhiteout(tx *storage.Tx, parent uint64, name string) error {
	return tx.Put(storage.WhiteKey(parent, name), []byte{})
}

// DeleteWhiteout clears a previously-recorded whiteout (on recreate).
func (e *Engine) DeleteWhiteout(tx *storage.Tx, parent uint64, name string) error {
	return tx.Delete(storage.WhiteKey(parent, name))
}

// EnsureDelta copies a base-only inode B forward into the delta, preserving
// its id (spec.md §4.3's copy-up procedure, steps 1-3). It is a no-op (and
// returns copiedUp=false) if ino already has a delta record. Callers invoke this
// before applying any mutation that spec.md §4.3 lists as a copy-up
// trigger, and then apply the mutation to the now-guaranteed delta record
// in the same transaction.
//
// Step 4 of the spec's procedure (deciding whether the parent directory
// entry needs a delta-side copy) is a no-op under this key layout: DIR
// entries are keyed by parent inode id, not nested under the parent's own
// INODE record, so the existing base-layer DIR/<parent>/<name> -> B
// binding keeps resolving correctly after B moves to the delta.
func (e *Engine) EnsureDelta(tx *storage.Tx, ino uint64) (copiedUp bool, err error) {
	if _, ok, err := tx.Get(storage.InodeKey(storage.LayerDelta, ino)); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}

	baseBuf, ok, err := tx.Get(storage.InodeKey(storage.LayerBase, ino))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: base inode %d missing for copy-up", ErrNotFound, ino)
	}
	rec, err := storage.DecodeInodeRecord(baseBuf)
	if err != nil {
		return false, err
	}

	origin := ino
	if rec.Provenance == storage.ProvenanceCopiedUp {
		origin = rec.OriginIno
	}
	rec.Provenance = storage.ProvenanceCopiedUp
	rec.OriginIno = origin

	if rec.IsFile() {
		chunks, err := tx.ScanPrefix(storage.ChunkPrefix(storage.LayerBase, ino))
		if err != nil {
			return false, err
		}
		for _, c := range chunks {
			offset, err := storage.ChunkOffsetFromKey(c.Key, storage.ChunkPrefix(storage.LayerBase, ino))
			if err != nil {
				return false, err
			}
			if err := tx.Put(storage.ChunkKey(storage.LayerDelta, ino, offset), c.Value); err != nil {
				return false, err
			}
		}
	} else if rec.IsSymlink() {
		target, ok, err := tx.Get(storage.SymKey(storage.LayerBase, ino))
		if err != nil {
			return false, err
		}
		if ok {
			if err := tx.Put(storage.SymKey(storage.LayerDelta, ino), target); err != nil {
				return false, err
			}
		}
	}

	xattrs, err := tx.ScanPrefix(storage.XattrPrefix(storage.LayerBase, ino))
	if err != nil {
		return false, err
	}
	xattrPrefix := storage.XattrPrefix(storage.LayerBase, ino)
	for _, x := range xattrs {
		name := storage.DirNameFromKey(x.Key, xattrPrefix)
		if err := tx.Put(storage.XattrKey(storage.LayerDelta, ino, name), x.Value); err != nil {
			return false, err
		}
	}

	if err := e.PutInode(tx, storage.LayerDelta, ino, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Usage scans every inode present in either layer and reports the total
// inode count and bytes of file content, for Statfs.
func (e *Engine) Usage(tx *storage.Tx) (inodes uint64, bytesUsed uint64, err error) {
	seen := make(map[uint64]struct{})
	for _, layer := range []storage.Layer{storage.LayerDelta, storage.LayerBase} {
		rows, err := tx.ScanPrefix(storage.InodeLayerPrefix(layer))
		if err != nil {
			return 0, 0, err
		}
		prefix := storage.InodeLayerPrefix(layer)
		for _, r := range rows {
			ino, err := storage.ParseUintSuffix(r.Key, prefix)
			if err != nil {
				return 0, 0, err
			}
			if _, dup := seen[ino]; dup {
				continue
			}
			seen[ino] = struct{}{}
			rec, err := storage.DecodeInodeRecord(r.Value)
			if err != nil {
				return 0, 0, err
			}
			if rec.IsFile() {
				bytesUsed += rec.Size
			}
		}
	}
	return uint64(len(seen)), bytesUsed, nil
}

