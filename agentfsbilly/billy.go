// Package agentfsbilly adapts an *agentfs.FS to billy.Filesystem.
// This adapter has no mount/serve concerns of its own: it is a thin
// wrapper over agentfs's Public API so any billy-consuming tool (go-git,
// go-nfs, sftp servers) can be pointed at an AgentFS database without a
// host mount extension.
package agentfsbilly

import (
	"context"
	"io"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"

	agentfs "github.com/agentfs/agentfs"
)

// Adapter adapts an *agentfs.FS to billy.Filesystem.
type Adapter struct {
	fs  *agentfs.FS
	uid uint32 // cached os.Getuid()
	gid uint32 // cached os.Getgid()
}

// New builds a billy.Filesystem backed by fs.
func New(fs *agentfs.FS) *Adapter {
	return &Adapter{fs: fs, uid: uint32(os.Getuid()), gid: uint32(os.Getgid())}
}

var (
	_ billy.Filesystem = (*Adapter)(nil)
	_ billy.Change     = (*Adapter)(nil)
	_ billy.File       = (*file)(nil)
)

func (a *Adapter) Create(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
}

func (a *Adapter) Open(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_RDONLY, 0)
}

func (a *Adapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	ctx := context.Background()
	if flag&os.O_CREATE != 0 {
		if err := a.fs.Create(ctx, filename, uint32(perm)&0777); err != nil && !agentfs.IsExists(err) {
			return nil, err
		}
	}
	if flag&os.O_TRUNC != 0 {
		if err := a.fs.Truncate(ctx, filename, 0); err != nil {
			return nil, err
		}
	}
	h, err := a.fs.Open(ctx, filename)
	if err != nil {
		return nil, err
	}
	offset := int64(0)
	if flag&os.O_APPEND != 0 {
		st, err := h.Stat(ctx)
		if err != nil {
			return nil, err
		}
		offset = int64(st.Size)
	}
	return &file{adapter: a, handle: h, name: filename, offset: offset}, nil
}

func (a *Adapter) Stat(filename string) (os.FileInfo, error) {
	st, err := a.fs.Stat(context.Background(), filename)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: path.Base(filename), stats: st, adapter: a}, nil
}

func (a *Adapter) Lstat(filename string) (os.FileInfo, error) {
	st, err := a.fs.Lstat(context.Background(), filename)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: path.Base(filename), stats: st, adapter: a}, nil
}

func (a *Adapter) Rename(oldpath, newpath string) error {
	return a.fs.Rename(context.Background(), oldpath, newpath)
}

func (a *Adapter) Remove(filename string) error {
	st, err := a.fs.Lstat(context.Background(), filename)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return a.fs.Rmdir(context.Background(), filename)
	}
	return a.fs.Remove(context.Background(), filename)
}

func (a *Adapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (a *Adapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, os.ErrInvalid
}

func (a *Adapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	entries, err := a.fs.Readdir(context.Background(), dirname)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		st, err := a.fs.Stat(context.Background(), path.Join(dirname, e.Name))
		if err != nil {
			continue
		}
		out = append(out, &fileInfo{name: e.Name, stats: st, adapter: a})
	}
	return out, nil
}

func (a *Adapter) MkdirAll(filename string, perm os.FileMode) error {
	ctx := context.Background()
	cur := "/"
	for _, comp := range splitClean(filename) {
		cur = path.Join(cur, comp)
		if err := a.fs.Mkdir(ctx, cur, uint32(perm)&0777); err != nil && !agentfs.IsExists(err) {
			return err
		}
	}
	return nil
}

func splitClean(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	var out []string
	for _, c := range splitSlash(p[1:]) {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func splitSlash(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (a *Adapter) Symlink(target, link string) error {
	return a.fs.Symlink(context.Background(), target, link)
}

func (a *Adapter) Readlink(link string) (string, error) {
	return a.fs.Readlink(context.Background(), link)
}

func (a *Adapter) Chroot(p string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (a *Adapter) Root() string {
	return "/"
}

// billy.Change interface. AgentFS's chmod applies only to mode bits;
// Chown/Chtimes are implemented for completeness since the Public API
// exposes them.
func (a *Adapter) Chmod(name string, mode os.FileMode) error {
	return a.fs.Chmod(context.Background(), name, uint32(mode)&0777)
}

func (a *Adapter) Lchown(name string, uid, gid int) error {
	return a.fs.Chown(context.Background(), name, uint32(uid), uint32(gid))
}

func (a *Adapter) Chown(name string, uid, gid int) error {
	return a.fs.Chown(context.Background(), name, uint32(uid), uint32(gid))
}

func (a *Adapter) Chtimes(name string, atime, mtime time.Time) error {
	return a.fs.Utimes(context.Background(), name, atime.Unix(), mtime.Unix())
}

func (a *Adapter) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

// file implements billy.File over an *agentfs.Handle.
type file struct {
	adapter *Adapter
	handle  *agentfs.Handle
	name    string
	offset  int64
}

func (f *file) Name() string { return f.name }

func (f *file) Write(p []byte) (int, error) {
	n, err := f.handle.Pwrite(context.Background(), uint64(f.offset), p)
	f.offset += int64(n)
	return n, err
}

func (f *file) Read(p []byte) (int, error) {
	data, err := f.handle.Pread(context.Background(), uint64(f.offset), len(p))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, data)
	f.offset += int64(n)
	return n, nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	data, err := f.handle.Pread(context.Background(), uint64(off), len(p))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		st, err := f.handle.Stat(context.Background())
		if err != nil {
			return 0, err
		}
		f.offset = int64(st.Size) + offset
	}
	return f.offset, nil
}

func (f *file) Close() error {
	return f.handle.Close()
}

func (f *file) Lock() error   { return nil }
func (f *file) Unlock() error { return nil }

func (f *file) Truncate(size int64) error {
	return f.handle.Truncate(context.Background(), uint64(size))
}

// fileInfo implements os.FileInfo over an agentfs.Stats snapshot.
type fileInfo struct {
	name    string
	stats   agentfs.Stats
	adapter *Adapter
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return int64(fi.stats.Size) }

func (fi *fileInfo) Mode() os.FileMode {
	var base os.FileMode
	switch {
	case fi.stats.IsDir():
		base = os.ModeDir
	case fi.stats.IsSymlink():
		base = os.ModeSymlink
	}
	return base | os.FileMode(fi.stats.Mode&0777)
}

func (fi *fileInfo) ModTime() time.Time { return time.Unix(fi.stats.Mtime, 0) }
func (fi *fileInfo) IsDir() bool        { return fi.stats.IsDir() }

func (fi *fileInfo) Sys() interface{} {
	return &fi.stats
}
