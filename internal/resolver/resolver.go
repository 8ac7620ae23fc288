// Package resolver implements the Path Resolver of spec.md §4.4: walking an
// absolute path component by component against the overlay view, consulting
// and populating the resolution cache, and following internal symlinks up
// to a bounded depth.
package resolver

import (
	"fmt"

	"github.com/agentfs/agentfs/internal/cache"
	"github.com/agentfs/agentfs/internal/overlay"
	"github.com/agentfs/agentfs/internal/pathutil"
	"github.com/agentfs/agentfs/internal/storage"
)

// MaxSymlinkDepth bounds internal-component symlink following; exceeding
// it surfaces ErrTooManyLinks (ELOOP).
const MaxSymlinkDepth = 40

var (
	ErrNotFound     = fmt.Errorf("resolver: not found")
	ErrNotDirectory = fmt.Errorf("resolver: not a directory")
	ErrTooManyLinks = fmt.Errorf("resolver: too many levels of symbolic links")
)

// Resolved is the outcome of resolving a path: its inode id, which layer
// currently serves it, and its record.
type Resolved struct {
	Ino   uint64
	Layer storage.Layer
	Rec   *storage.InodeRecord
}

// Resolver walks paths against an overlay.Engine, using cache to skip
// directory lookups for already-known bindings.
type Resolver struct {
	Engine *overlay.Engine
	Cache  *cache.Cache
}

// New builds a Resolver over engine, using c for the resolution cache
// (c may be a disabled cache; Resolver treats that transparently).
func New(engine *overlay.Engine, c *cache.Cache) *Resolver {
	return &Resolver{Engine: engine, Cache: c}
}

// Resolve walks path to its final inode, following internal symlinks.
// followFinal controls whether a symlink at the final component is itself
// followed (true for Resolve/stat-like callers, false for Lstat-like ones).
func (r *Resolver) Resolve(tx *storage.Tx, path string, followFinal bool) (Resolved, error) {
	return r.resolve(tx, path, followFinal, 0)
}

func (r *Resolver) resolve(tx *storage.Tx, path string, followFinal bool, depth int) (Resolved, error) {
	path = pathutil.Clean(path)
	if depth > MaxSymlinkDepth {
		return Resolved{}, ErrTooManyLinks
	}

	if b, ok := r.Cache.Lookup(path); ok {
		rec, layer, err := r.Engine.GetInode(tx, b.Ino)
		if err == nil {
			if rec.IsSymlink() && followFinal {
				return r.followSymlink(tx, path, b.Ino, layer, rec, depth)
			}
			return Resolved{Ino: b.Ino, Layer: layer, Rec: rec}, nil
		}
		// Stale binding (inode since deleted): fall through to a fresh walk.
	}

	ino := storage.RootIno
	components := pathutil.Split(path)

	for i, name := range components {
		if err := pathutil.ValidateComponent(name); err != nil {
			return Resolved{}, err
		}
		parentRec, _, err := r.Engine.GetInode(tx, ino)
		if err != nil {
			return Resolved{}, translateOverlayErr(err)
		}
		if !parentRec.IsDir() {
			return Resolved{}, ErrNotDirectory
		}

		binding, err := r.Engine.LookupChild(tx, ino, name)
		if err != nil {
			return Resolved{}, translateOverlayErr(err)
		}
		if !binding.Found {
			return Resolved{}, ErrNotFound
		}
		ino = binding.Ino

		rec, layer, err := r.Engine.GetInode(tx, ino)
		if err != nil {
			return Resolved{}, translateOverlayErr(err)
		}

		isLast := i == len(components)-1
		if rec.IsSymlink() && (!isLast || followFinal) {
			resolved, err := r.followSymlink(tx, currentPrefix(components[:i+1]), ino, layer, rec, depth)
			if err != nil {
				return Resolved{}, err
			}
			if isLast {
				// Cache the symlink's own binding, not the followed target:
				// a later Lstat on the same path must see the symlink itself,
				// and the cache-hit branch above already re-follows on Stat.
				r.Cache.Insert(path, ino, kindOf(rec))
				return resolved, nil
			}
			ino = resolved.Ino
			continue
		}

		if isLast {
			r.Cache.Insert(path, ino, kindOf(rec))
			return Resolved{Ino: ino, Layer: layer, Rec: rec}, nil
		}
	}

	// Empty components means path == "/".
	rec, layer, err := r.Engine.GetInode(tx, storage.RootIno)
	if err != nil {
		return Resolved{}, translateOverlayErr(err)
	}
	return Resolved{Ino: storage.RootIno, Layer: layer, Rec: rec}, nil
}

func (r *Resolver) followSymlink(tx *storage.Tx, atPath string, ino uint64, layer storage.Layer, rec *storage.InodeRecord, depth int) (Resolved, error) {
	target, err := r.Engine.ReadSymlink(tx, ino, layer)
	if err != nil {
		return Resolved{}, translateOverlayErr(err)
	}
	next := target
	if len(target) == 0 || target[0] != '/' {
		next = pathutil.Clean(pathutil.Parent(atPath) + "/" + target)
	}
	return r.resolve(tx, next, true, depth+1)
}

func currentPrefix(components []string) string {
	return pathutil.Join(components...)
}

func kindOf(rec *storage.InodeRecord) cache.Kind {
	switch {
	case rec.IsDir():
		return cache.KindDir
	case rec.IsSymlink():
		return cache.KindSymlink
	default:
		return cache.KindFile
	}
}

func translateOverlayErr(err error) error {
	switch err {
	case overlay.ErrNotFound:
		return ErrNotFound
	case overlay.ErrNotDirectory:
		return ErrNotDirectory
	default:
		return err
	}
}

// InvalidateForUnlink applies the `unlink`/`remove`/single-file-`rename`
// row of spec.md §4.4's invalidation table.
func (r *Resolver) InvalidateForUnlink(path string) {
	r.Cache.InvalidateExact(path)
}

// InvalidateForSubtreeRemoval applies the `rmdir`/directory-`rename` row:
// path itself plus every cached key under path+"/".
func (r *Resolver) InvalidateForSubtreeRemoval(path string) {
	r.Cache.InvalidateSubtree(path)
}

// write/truncate/chmod/chown/utimes/setxattr never invalidate the cache:
// they don't change what a path resolves to, and the cache stores only
// the resolution binding, never attributes, per spec.md §4.4.
