package agentfs

import (
	"context"

	"github.com/agentfs/agentfs/internal/overlay"
	"github.com/agentfs/agentfs/internal/pathutil"
	"github.com/agentfs/agentfs/internal/storage"
)

func toStats(ino uint64, rec *storage.InodeRecord) Stats {
	return Stats{
		Ino: ino, Mode: rec.Mode, Uid: rec.Uid, Gid: rec.Gid,
		Nlink: rec.Nlink, Size: rec.Size,
		Atime: rec.Atime, Mtime: rec.Mtime, Ctime: rec.Ctime,
	}
}

// Stat resolves path, following a trailing symlink.
func (fs *FS) Stat(ctx context.Context, path string) (Stats, error) {
	path = pathutil.Clean(path)
	var out Stats
	err := fs.withRead(ctx, "stat", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		out = toStats(resolved.Ino, resolved.Rec)
		return nil
	})
	return out, err
}

// Lstat resolves path without following a trailing symlink.
func (fs *FS) Lstat(ctx context.Context, path string) (Stats, error) {
	path = pathutil.Clean(path)
	var out Stats
	err := fs.withRead(ctx, "lstat", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, false)
		if err != nil {
			return err
		}
		out = toStats(resolved.Ino, resolved.Rec)
		return nil
	})
	return out, err
}

// Pread reads up to length bytes from path starting at offset. Never
// triggers copy-up.
func (fs *FS) Pread(ctx context.Context, path string, offset uint64, length int) ([]byte, error) {
	path = pathutil.Clean(path)
	var out []byte
	err := fs.withRead(ctx, "read", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if resolved.Rec.IsDir() {
			return overlay.ErrIsDirectory
		}
		out, err = fs.engine.ReadContent(tx, resolved.Layer, resolved.Ino, resolved.Rec.Size, offset, uint64(length))
		return err
	})
	return out, err
}

// Pwrite writes data at offset into path, copying the target up to the
// delta first if it currently lives in the base layer.
func (fs *FS) Pwrite(ctx context.Context, path string, offset uint64, data []byte) (int, error) {
	path = pathutil.Clean(path)
	err := fs.withWrite(ctx, "write", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if resolved.Rec.IsDir() {
			return overlay.ErrIsDirectory
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		newSize, err := fs.engine.WriteContent(tx, storage.LayerDelta, resolved.Ino, rec.Size, offset, data)
		if err != nil {
			return err
		}
		rec.Size = newSize
		rec.Mtime, rec.Ctime = now(), now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Truncate resizes path's content to size, copying up first if needed.
func (fs *FS) Truncate(ctx context.Context, path string, size uint64) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "truncate", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if resolved.Rec.IsDir() {
			return overlay.ErrIsDirectory
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		if err := fs.engine.Truncate(tx, storage.LayerDelta, resolved.Ino, rec.Size, size); err != nil {
			return err
		}
		rec.Size = size
		rec.Mtime, rec.Ctime = now(), now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// Fallocate reserves space for [offset, offset+length) in path's content,
// copying the target up first if needed. Growth beyond the current size is
// zero-filled, matching Truncate's growth behavior; fallocate never shrinks
// a file.
func (fs *FS) Fallocate(ctx context.Context, path string, offset, length uint64) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "fallocate", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if resolved.Rec.IsDir() {
			return overlay.ErrIsDirectory
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		newSize := offset + length
		if newSize <= rec.Size {
			return nil
		}
		if err := fs.engine.Truncate(tx, storage.LayerDelta, resolved.Ino, rec.Size, newSize); err != nil {
			return err
		}
		rec.Size = newSize
		rec.Mtime, rec.Ctime = now(), now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// Chmod updates path's mode bits, preserving the type bits already set.
func (fs *FS) Chmod(ctx context.Context, path string, mode uint32) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "chmod", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		rec.Mode = (rec.Mode &^ 0777) | (mode & 0777)
		rec.Ctime = now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// Chown updates path's uid/gid. A negative value (represented as the
// sentinel ^uint32(0)) leaves that field unchanged.
func (fs *FS) Chown(ctx context.Context, path string, uid, gid uint32) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "chown", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		if uid != noChangeID {
			rec.Uid = uid
		}
		if gid != noChangeID {
			rec.Gid = gid
		}
		rec.Ctime = now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// noChangeID is the Chown sentinel meaning "leave this field unchanged".
const noChangeID = ^uint32(0)

// Utimes sets path's atime/mtime.
func (fs *FS) Utimes(ctx context.Context, path string, atime, mtime int64) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "utimes", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		rec.Atime = atime
		rec.Mtime = mtime
		rec.Ctime = now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// Mkdir creates a new directory at path.
func (fs *FS) Mkdir(ctx context.Context, path string, mode uint32) error {
	path = pathutil.Clean(path)
	parentPath, name := pathutil.Parent(path), pathutil.Base(path)
	return fs.withWrite(ctx, "mkdir", path, func(tx *storage.Tx) error {
		parent, err := fs.resolver.Resolve(tx, parentPath, true)
		if err != nil {
			return err
		}
		if !parent.Rec.IsDir() {
			return overlay.ErrNotDirectory
		}
		if err := pathutil.ValidateComponent(name); err != nil {
			return err
		}
		if binding, err := fs.engine.LookupChild(tx, parent.Ino, name); err != nil {
			return err
		} else if binding.Found {
			return overlay.ErrExists
		}
		_, err = fs.engine.CreateChild(tx, parent.Ino, name, storage.ModeDir|(mode&0777), 0, 0, now())
		return err
	})
}

// Create creates a new regular file at path.
func (fs *FS) Create(ctx context.Context, path string, mode uint32) error {
	path = pathutil.Clean(path)
	parentPath, name := pathutil.Parent(path), pathutil.Base(path)
	return fs.withWrite(ctx, "create", path, func(tx *storage.Tx) error {
		parent, err := fs.resolver.Resolve(tx, parentPath, true)
		if err != nil {
			return err
		}
		if !parent.Rec.IsDir() {
			return overlay.ErrNotDirectory
		}
		if err := pathutil.ValidateComponent(name); err != nil {
			return err
		}
		if binding, err := fs.engine.LookupChild(tx, parent.Ino, name); err != nil {
			return err
		} else if binding.Found {
			return overlay.ErrExists
		}
		_, err = fs.engine.CreateChild(tx, parent.Ino, name, storage.ModeFile|(mode&0777), 0, 0, now())
		return err
	})
}

// Symlink creates a new symlink at linkpath pointing at target.
func (fs *FS) Symlink(ctx context.Context, target, linkpath string) error {
	linkpath = pathutil.Clean(linkpath)
	parentPath, name := pathutil.Parent(linkpath), pathutil.Base(linkpath)
	return fs.withWrite(ctx, "symlink", linkpath, func(tx *storage.Tx) error {
		parent, err := fs.resolver.Resolve(tx, parentPath, true)
		if err != nil {
			return err
		}
		if !parent.Rec.IsDir() {
			return overlay.ErrNotDirectory
		}
		if binding, err := fs.engine.LookupChild(tx, parent.Ino, name); err != nil {
			return err
		} else if binding.Found {
			return overlay.ErrExists
		}
		_, err = fs.engine.CreateSymlink(tx, parent.Ino, name, target, 0, 0, now())
		return err
	})
}

// Readlink returns path's symlink target.
func (fs *FS) Readlink(ctx context.Context, path string) (string, error) {
	path = pathutil.Clean(path)
	var target string
	err := fs.withRead(ctx, "readlink", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, false)
		if err != nil {
			return err
		}
		if !resolved.Rec.IsSymlink() {
			return overlay.ErrInvalidArgument
		}
		target, err = fs.engine.ReadSymlink(tx, resolved.Ino, resolved.Layer)
		return err
	})
	return target, err
}

// Readdir lists path's logical directory contents in lexicographic order.
func (fs *FS) Readdir(ctx context.Context, path string) ([]DirEntry, error) {
	path = pathutil.Clean(path)
	var out []DirEntry
	err := fs.withRead(ctx, "readdir", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if !resolved.Rec.IsDir() {
			return overlay.ErrNotDirectory
		}
		names, err := fs.engine.ReadDir(tx, resolved.Ino)
		if err != nil {
			return err
		}
		out = make([]DirEntry, 0, len(names))
		for _, name := range names {
			binding, err := fs.engine.LookupChild(tx, resolved.Ino, name)
			if err != nil {
				return err
			}
			rec, _, err := fs.engine.GetInode(tx, binding.Ino)
			if err != nil {
				return err
			}
			out = append(out, DirEntry{Name: name, Ino: binding.Ino, Mode: rec.Mode})
		}
		return nil
	})
	return out, err
}

// Remove unlinks a non-directory name.
func (fs *FS) Remove(ctx context.Context, path string) error {
	path = pathutil.Clean(path)
	parentPath, name := pathutil.Parent(path), pathutil.Base(path)
	err := fs.withWrite(ctx, "remove", path, func(tx *storage.Tx) error {
		parent, err := fs.resolver.Resolve(tx, parentPath, true)
		if err != nil {
			return err
		}
		_, _, err = fs.engine.Unlink(tx, parent.Ino, name)
		return err
	})
	if err == nil {
		fs.resolver.InvalidateForUnlink(path)
	}
	return err
}

// Rmdir removes an empty directory.
func (fs *FS) Rmdir(ctx context.Context, path string) error {
	path = pathutil.Clean(path)
	parentPath, name := pathutil.Parent(path), pathutil.Base(path)
	err := fs.withWrite(ctx, "rmdir", path, func(tx *storage.Tx) error {
		parent, err := fs.resolver.Resolve(tx, parentPath, true)
		if err != nil {
			return err
		}
		_, err = fs.engine.Rmdir(tx, parent.Ino, name)
		return err
	})
	if err == nil {
		fs.resolver.InvalidateForSubtreeRemoval(path)
	}
	return err
}

// Rename moves src to dst, preserving src's inode id.
func (fs *FS) Rename(ctx context.Context, src, dst string) error {
	src, dst = pathutil.Clean(src), pathutil.Clean(dst)
	srcParentPath, srcName := pathutil.Parent(src), pathutil.Base(src)
	dstParentPath, dstName := pathutil.Parent(dst), pathutil.Base(dst)

	var wasDir bool
	err := fs.withWrite(ctx, "rename", src, func(tx *storage.Tx) error {
		srcParent, err := fs.resolver.Resolve(tx, srcParentPath, true)
		if err != nil {
			return err
		}
		dstParent, err := fs.resolver.Resolve(tx, dstParentPath, true)
		if err != nil {
			return err
		}
		if binding, err := fs.engine.LookupChild(tx, srcParent.Ino, srcName); err != nil {
			return err
		} else if binding.Found {
			if rec, _, err := fs.engine.GetInode(tx, binding.Ino); err == nil {
				wasDir = rec.IsDir()
			}
		}
		_, err = fs.engine.Rename(tx, srcParent.Ino, srcName, dstParent.Ino, dstName)
		return err
	})
	if err == nil {
		if wasDir {
			fs.resolver.InvalidateForSubtreeRemoval(src)
			fs.resolver.InvalidateForSubtreeRemoval(dst)
		} else {
			fs.resolver.InvalidateForUnlink(src)
			fs.resolver.InvalidateForUnlink(dst)
		}
	}
	return err
}

// Link creates a new hard link dst pointing at the same inode as src.
// Hard links are supported only within the delta (spec.md §4.3); linking
// a directory is NotSupported.
func (fs *FS) Link(ctx context.Context, src, dst string) error {
	src, dst = pathutil.Clean(src), pathutil.Clean(dst)
	srcParentPath, srcName := pathutil.Parent(src), pathutil.Base(src)
	dstParentPath, dstName := pathutil.Parent(dst), pathutil.Base(dst)
	return fs.withWrite(ctx, "link", dst, func(tx *storage.Tx) error {
		srcParent, err := fs.resolver.Resolve(tx, srcParentPath, true)
		if err != nil {
			return err
		}
		dstParent, err := fs.resolver.Resolve(tx, dstParentPath, true)
		if err != nil {
			return err
		}
		_, err = fs.engine.Link(tx, srcParent.Ino, srcName, dstParent.Ino, dstName)
		return err
	})
}

// Fsync is a no-op beyond the backend's own commit durability: every
// mutating Public API call already commits a durable transaction, so
// Fsync only needs to confirm the path still resolves.
func (fs *FS) Fsync(ctx context.Context, path string) error {
	path = pathutil.Clean(path)
	return fs.withRead(ctx, "fsync", path, func(tx *storage.Tx) error {
		_, err := fs.resolver.Resolve(tx, path, true)
		return err
	})
}

// Setxattr sets an extended attribute on path, copying up first if needed.
func (fs *FS) Setxattr(ctx context.Context, path, name string, value []byte) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "setxattr", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		if err := fs.engine.SetXattr(tx, storage.LayerDelta, resolved.Ino, name, value); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		rec.Ctime = now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// Getxattr returns path's extended attribute value for name.
func (fs *FS) Getxattr(ctx context.Context, path, name string) ([]byte, error) {
	path = pathutil.Clean(path)
	var out []byte
	err := fs.withRead(ctx, "getxattr", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		value, ok, err := fs.engine.GetXattr(tx, resolved.Layer, resolved.Ino, name)
		if err != nil {
			return err
		}
		if !ok {
			return overlay.ErrNotFound
		}
		out = value
		return nil
	})
	return out, err
}

// Listxattr returns the names of every extended attribute set on path.
func (fs *FS) Listxattr(ctx context.Context, path string) ([]string, error) {
	path = pathutil.Clean(path)
	var out []string
	err := fs.withRead(ctx, "listxattr", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		out, err = fs.engine.ListXattr(tx, resolved.Layer, resolved.Ino)
		return err
	})
	return out, err
}

// Removexattr removes path's extended attribute for name, copying up
// first if needed.
func (fs *FS) Removexattr(ctx context.Context, path, name string) error {
	path = pathutil.Clean(path)
	return fs.withWrite(ctx, "removexattr", path, func(tx *storage.Tx) error {
		resolved, err := fs.resolver.Resolve(tx, path, true)
		if err != nil {
			return err
		}
		if _, err := fs.engine.EnsureDelta(tx, resolved.Ino); err != nil {
			return err
		}
		if err := fs.engine.RemoveXattr(tx, storage.LayerDelta, resolved.Ino, name); err != nil {
			return err
		}
		rec, _, err := fs.engine.GetInode(tx, resolved.Ino)
		if err != nil {
			return err
		}
		rec.Ctime = now()
		return fs.engine.PutInode(tx, storage.LayerDelta, resolved.Ino, rec)
	})
}

// Statfs returns aggregate usage statistics over the whole database.
func (fs *FS) Statfs(ctx context.Context) (StatfsResult, error) {
	var out StatfsResult
	err := fs.withRead(ctx, "statfs", "/", func(tx *storage.Tx) error {
		inodes, bytesUsed, err := fs.engine.Usage(tx)
		if err != nil {
			return err
		}
		out = StatfsResult{BytesUsed: bytesUsed, Inodes: inodes}
		return nil
	})
	return out, err
}
