package agentfs

// Stats is the attribute payload returned by Stat/Lstat, matching
// spec.md §6's stats shape.
type Stats struct {
	Ino   uint64
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Nlink uint32
	Size  uint64
	Atime int64
	Mtime int64
	Ctime int64
}

// IsDir reports whether the stats describe a directory.
func (s Stats) IsDir() bool { return s.Mode&modeTypeMask == modeDir }

// IsFile reports whether the stats describe a regular file.
func (s Stats) IsFile() bool { return s.Mode&modeTypeMask == modeFile }

// IsSymlink reports whether the stats describe a symbolic link.
func (s Stats) IsSymlink() bool { return s.Mode&modeTypeMask == modeSymlink }

// StatfsResult is the payload returned by Statfs.
type StatfsResult struct {
	BytesUsed uint64
	Inodes    uint64
}

// DirEntry is a single readdir result: a name plus its kind, without a
// full stat (matching the C-ABI surface's "names only" contract).
type DirEntry struct {
	Name string
	Ino  uint64
	Mode uint32
}

// IsDir reports whether the directory entry is itself a directory.
func (d DirEntry) IsDir() bool { return d.Mode&modeTypeMask == modeDir }

// IsFile reports whether the directory entry is a regular file.
func (d DirEntry) IsFile() bool { return d.Mode&modeTypeMask == modeFile }

// CacheConfig controls the path-resolution cache at Open time, matching
// spec.md §6's `cache: { enabled, max_entries }` configuration shape.
type CacheConfig struct {
	Enabled    bool
	MaxEntries int
}

// DefaultCacheConfig is the resolution cache's default sizing.
var DefaultCacheConfig = CacheConfig{Enabled: true, MaxEntries: 4096}

// Config is the Open-time configuration of spec.md §6:
// `{ path: string | ":memory:"; cache: { enabled, max_entries } }`.
type Config struct {
	// Path is the database file path, or ":memory:" (equivalently "") for
	// the non-persistent mode.
	Path string
	// Cache configures the path-resolution cache.
	Cache CacheConfig
}
