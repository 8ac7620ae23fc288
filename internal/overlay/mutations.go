package overlay

import (
	"fmt"

	"github.com/agentfs/agentfs/internal/storage"
)

// CreateChild allocates a new inode of the given mode (directory or regular
// file) under parent/name and links it into the delta. Callers have
// already verified name is free (no delta entry, no base entry unless
// whited-out).
func (e *Engine) CreateChild(tx *storage.Tx, parent uint64, name string, mode uint32, uid, gid uint32, now int64) (uint64, error) {
	ino, err := e.NextIno(tx)
	if err != nil {
		return 0, err
	}
	rec := &storage.InodeRecord{
		Mode: mode, Uid: uid, Gid: gid, Nlink: 1,
		Atime: now, Mtime: now, Ctime: now,
		Provenance: storage.ProvenanceDelta,
	}
	if mode&storage.ModeMask == storage.ModeDir {
		rec.Nlink = 2 // POSIX convention: the parent's entry plus the directory's own "."
	}
	if err := e.PutInode(tx, storage.LayerDelta, ino, rec); err != nil {
		return 0, err
	}
	if err := e.PutDirEntry(tx, storage.LayerDelta, parent, name, ino); err != nil {
		return 0, err
	}
	if err := e.DeleteWhiteout(tx, parent, name); err != nil {
		return 0, err
	}
	return ino, nil
}

// CreateSymlink allocates a new symlink inode under parent/name pointing at
// target.
func (e *Engine) CreateSymlink(tx *storage.Tx, parent uint64, name, target string, uid, gid uint32, now int64) (uint64, error) {
	ino, err := e.NextIno(tx)
	if err != nil {
		return 0, err
	}
	rec := &storage.InodeRecord{
		Mode: storage.ModeSymlink | 0777, Uid: uid, Gid: gid, Nlink: 1,
		Size: uint64(len(target)), Atime: now, Mtime: now, Ctime: now,
		Provenance: storage.ProvenanceDelta,
	}
	if err := e.PutInode(tx, storage.LayerDelta, ino, rec); err != nil {
		return 0, err
	}
	if err := tx.Put(storage.SymKey(storage.LayerDelta, ino), []byte(target)); err != nil {
		return 0, err
	}
	if err := e.PutDirEntry(tx, storage.LayerDelta, parent, name, ino); err != nil {
		return 0, err
	}
	return ino, e.DeleteWhiteout(tx, parent, name)
}

// ReadSymlink returns ino's target, from whichever layer currently serves it.
func (e *Engine) ReadSymlink(tx *storage.Tx, ino uint64, layer storage.Layer) (string, error) {
	buf, ok, err := tx.Get(storage.SymKey(layer, ino))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: symlink target missing for inode %d", ErrNotFound, ino)
	}
	return string(buf), nil
}

// Unlink removes a non-directory name binding per spec.md §4.3's remove
// semantics: drop the delta entry if present, else whiteout the base
// entry. If the target inode's nlink drops to zero, its record and
// content are deleted. Returns the removed inode's id and whether it was
// destroyed.
func (e *Engine) Unlink(tx *storage.Tx, parent uint64, name string) (ino uint64, destroyed bool, err error) {
	binding, err := e.LookupChild(tx, parent, name)
	if err != nil {
		return 0, false, err
	}
	if !binding.Found {
		return 0, false, ErrNotFound
	}

	rec, layer, err := e.GetInode(tx, binding.Ino)
	if err != nil {
		return 0, false, err
	}
	if rec.IsDir() {
		return 0, false, ErrIsDirectory
	}

	if binding.Layer == storage.LayerDelta {
		if err := e.DeleteDirEntry(tx, storage.LayerDelta, parent, name); err != nil {
			return 0, false, err
		}
		// A delta entry over a still-base-visible name (e.g. after a
		// rename shadowed it) needs no whiteout; absence of any binding
		// is enough once the delta entry is gone and no base entry
		// exists at this name. If one does, hide it too.
		if _, baseOk, err := tx.Get(storage.DirKey(storage.LayerBase, parent, name)); err != nil {
			return 0, false, err
		} else if baseOk {
			if err := e.PutWhiteout(tx, parent, name); err != nil {
				return 0, false, err
			}
		}
	} else {
		if err := e.PutWhiteout(tx, parent, name); err != nil {
			return 0, false, err
		}
	}

	rec.Nlink--
	if rec.Nlink == 0 {
		if rec.IsFile() {
			if err := e.deleteAllChunks(tx, layer, binding.Ino); err != nil {
				return 0, false, err
			}
		} else if rec.IsSymlink() {
			if err := tx.Delete(storage.SymKey(layer, binding.Ino)); err != nil {
				return 0, false, err
			}
		}
		if err := e.deleteAllXattrs(tx, layer, binding.Ino); err != nil {
			return 0, false, err
		}
		if err := e.DeleteInode(tx, layer, binding.Ino); err != nil {
			return 0, false, err
		}
		return binding.Ino, true, nil
	}
	if err := e.PutInode(tx, layer, binding.Ino, rec); err != nil {
		return 0, false, err
	}
	return binding.Ino, false, nil
}

// Rmdir removes an empty directory binding. Semantics mirror Unlink but
// require the logical listing to be empty first.
func (e *Engine) Rmdir(tx *storage.Tx, parent uint64, name string) (uint64, error) {
	binding, err := e.LookupChild(tx, parent, name)
	if err != nil {
		return 0, err
	}
	if !binding.Found {
		return 0, ErrNotFound
	}
	rec, layer, err := e.GetInode(tx, binding.Ino)
	if err != nil {
		return 0, err
	}
	if !rec.IsDir() {
		return 0, ErrNotDirectory
	}
	hasChildren, err := e.HasChildren(tx, binding.Ino)
	if err != nil {
		return 0, err
	}
	if hasChildren {
		return 0, ErrNotEmpty
	}

	if binding.Layer == storage.LayerDelta {
		if err := e.DeleteDirEntry(tx, storage.LayerDelta, parent, name); err != nil {
			return 0, err
		}
		if _, baseOk, err := tx.Get(storage.DirKey(storage.LayerBase, parent, name)); err != nil {
			return 0, err
		} else if baseOk {
			if err := e.PutWhiteout(tx, parent, name); err != nil {
				return 0, err
			}
		}
	} else {
		if err := e.PutWhiteout(tx, parent, name); err != nil {
			return 0, err
		}
	}

	if err := e.deleteAllXattrs(tx, layer, binding.Ino); err != nil {
		return 0, err
	}
	if err := e.DeleteInode(tx, layer, binding.Ino); err != nil {
		return 0, err
	}
	return binding.Ino, nil
}

// Rename implements spec.md §4.3's rename semantics. srcIno is the
// (possibly copied-up) inode id that now lives at dst.
func (e *Engine) Rename(tx *storage.Tx, srcParent uint64, srcName string, dstParent uint64, dstName string) (srcIno uint64, err error) {
	srcBinding, err := e.LookupChild(tx, srcParent, srcName)
	if err != nil {
		return 0, err
	}
	if !srcBinding.Found {
		return 0, ErrNotFound
	}

	if srcBinding.Layer == storage.LayerBase {
		if _, err := e.EnsureDelta(tx, srcBinding.Ino); err != nil {
			return 0, err
		}
	}
	srcIno = srcBinding.Ino

	dstBinding, err := e.LookupChild(tx, dstParent, dstName)
	if err != nil {
		return 0, err
	}
	if dstBinding.Found {
		dstRec, _, err := e.GetInode(tx, dstBinding.Ino)
		if err != nil {
			return 0, err
		}
		if dstRec.IsDir() {
			hasChildren, err := e.HasChildren(tx, dstBinding.Ino)
			if err != nil {
				return 0, err
			}
			if hasChildren {
				return 0, ErrNotEmpty
			}
		}
		if dstBinding.Layer == storage.LayerDelta {
			if err := e.DeleteDirEntry(tx, storage.LayerDelta, dstParent, dstName); err != nil {
				return 0, err
			}
			if _, baseOk, err := tx.Get(storage.DirKey(storage.LayerBase, dstParent, dstName)); err != nil {
				return 0, err
			} else if baseOk {
				if err := e.PutWhiteout(tx, dstParent, dstName); err != nil {
					return 0, err
				}
			}
		} else {
			if err := e.PutWhiteout(tx, dstParent, dstName); err != nil {
				return 0, err
			}
		}
	}

	if err := e.PutDirEntry(tx, storage.LayerDelta, dstParent, dstName, srcIno); err != nil {
		return 0, err
	}
	if err := e.DeleteWhiteout(tx, dstParent, dstName); err != nil {
		return 0, err
	}

	if _, ok, err := tx.Get(storage.DirKey(storage.LayerDelta, srcParent, srcName)); err != nil {
		return 0, err
	} else if ok {
		if err := e.DeleteDirEntry(tx, storage.LayerDelta, srcParent, srcName); err != nil {
			return 0, err
		}
	}
	if _, baseOk, err := tx.Get(storage.DirKey(storage.LayerBase, srcParent, srcName)); err != nil {
		return 0, err
	} else if baseOk {
		if err := e.PutWhiteout(tx, srcParent, srcName); err != nil {
			return 0, err
		}
	}

	return srcIno, nil
}

// Link implements spec.md §4.3's link semantics within the delta: copy-up
// src if base-only, then insert a second delta directory entry at the same
// inode id and bump nlink.
func (e *Engine) Link(tx *storage.Tx, srcParent uint64, srcName string, dstParent uint64, dstName string) (uint64, error) {
	srcBinding, err := e.LookupChild(tx, srcParent, srcName)
	if err != nil {
		return 0, err
	}
	if !srcBinding.Found {
		return 0, ErrNotFound
	}
	rec, _, err := e.GetInode(tx, srcBinding.Ino)
	if err != nil {
		return 0, err
	}
	if rec.IsDir() {
		return 0, ErrNotSupported
	}

	if _, err := e.EnsureDelta(tx, srcBinding.Ino); err != nil {
		return 0, err
	}

	if dstBinding, err := e.LookupChild(tx, dstParent, dstName); err != nil {
		return 0, err
	} else if dstBinding.Found {
		return 0, ErrExists
	}

	deltaRec, _, err := e.GetInode(tx, srcBinding.Ino)
	if err != nil {
		return 0, err
	}
	deltaRec.Nlink++
	if err := e.PutInode(tx, storage.LayerDelta, srcBinding.Ino, deltaRec); err != nil {
		return 0, err
	}
	if err := e.PutDirEntry(tx, storage.LayerDelta, dstParent, dstName, srcBinding.Ino); err != nil {
		return 0, err
	}
	return srcBinding.Ino, e.DeleteWhiteout(tx, dstParent, dstName)
}

func (e *Engine) deleteAllChunks(tx *storage.Tx, layer storage.Layer, ino uint64) error {
	rows, err := tx.ScanPrefix(storage.ChunkPrefix(layer, ino))
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tx.Delete(r.Key); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deleteAllXattrs(tx *storage.Tx, layer storage.Layer, ino uint64) error {
	rows, err := tx.ScanPrefix(storage.XattrPrefix(layer, ino))
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tx.Delete(r.Key); err != nil {
			return err
		}
	}
	return nil
}
