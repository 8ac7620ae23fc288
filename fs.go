// Package agentfs is the Public API of spec.md §4.5: a path-addressed,
// stateless-per-call overlay filesystem backed by a single database file.
package agentfs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentfs/agentfs/internal/cache"
	"github.com/agentfs/agentfs/internal/overlay"
	"github.com/agentfs/agentfs/internal/pathutil"
	"github.com/agentfs/agentfs/internal/resolver"
	"github.com/agentfs/agentfs/internal/storage"
)

// FS is an open AgentFS database: the Storage Backend, Overlay Engine, and
// Path Resolver/Cache wired together behind the Public API.
type FS struct {
	backend  *storage.Backend
	engine   *overlay.Engine
	resolver *resolver.Resolver
	cache    *cache.Cache
	handles  *handleTable
}

// Create makes a brand-new database at cfg.Path (or ":memory:") and opens
// it. It fails if a file already exists at cfg.Path.
func Create(cfg Config) (*FS, error) {
	backend, err := storage.Create(dbPath(cfg.Path), storage.DBContextDefault)
	if err != nil {
		return nil, wrapStorageErr("Create", cfg.Path, err)
	}
	return newFS(backend, cfg)
}

// Open opens an existing database at cfg.Path.
func Open(cfg Config) (*FS, error) {
	backend, err := storage.Open(dbPath(cfg.Path), storage.DBContextDefault)
	if err != nil {
		return nil, wrapStorageErr("Open", cfg.Path, err)
	}
	return newFS(backend, cfg)
}

func dbPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func newFS(backend *storage.Backend, cfg Config) (*FS, error) {
	if err := checkInoReservation(backend); err != nil {
		backend.Close()
		return nil, err
	}

	maxEntries := cfg.Cache.MaxEntries
	if !cfg.Cache.Enabled {
		maxEntries = 0
	} else if maxEntries == 0 {
		maxEntries = DefaultCacheConfig.MaxEntries
	}

	c := cache.New(maxEntries)
	engine := overlay.New(backend)
	return &FS{
		backend:  backend,
		engine:   engine,
		resolver: resolver.New(engine, c),
		cache:    c,
		handles:  newHandleTable(),
	}, nil
}

// checkInoReservation enforces spec.md §9's "inode-id reservation"
// precondition: the stored next_ino must be strictly greater than the
// highest base inode id, or the stability invariant is unimplementable.
// It also rejects a database whose META/version is not SchemaVersion.
func checkInoReservation(backend *storage.Backend) error {
	tx, err := backend.BeginRead(context.Background())
	if err != nil {
		return wrapStorageErr("Open", "", err)
	}
	defer tx.Abort()

	versionBuf, ok, err := tx.Get(storage.MetaKey("version"))
	if err != nil || !ok || string(versionBuf) != storage.SchemaVersion {
		return newErr("Open", "", Corruption, err)
	}

	nextBuf, ok, err := tx.Get(storage.MetaKey("next_ino"))
	if err != nil || !ok {
		return newErr("Open", "", Corruption, err)
	}
	next, err := decodeMetaU64(nextBuf)
	if err != nil {
		return newErr("Open", "", Corruption, err)
	}

	maxBaseBuf, ok, err := tx.Get(storage.MetaKey("max_base_ino"))
	if err != nil {
		return newErr("Open", "", Corruption, err)
	}
	var maxBase uint64
	if ok {
		maxBase, err = decodeMetaU64(maxBaseBuf)
		if err != nil {
			return newErr("Open", "", Corruption, err)
		}
	}

	if next <= maxBase {
		return newErr("Open", "", Corruption, nil)
	}
	return nil
}

// Close releases the underlying Storage Backend handle.
func (fs *FS) Close() error {
	return fs.backend.Close()
}

// ClearCache drops every resolution-cache entry (spec.md §4.4's
// `ClearCache()` row).
func (fs *FS) ClearCache() {
	fs.cache.Invalidate()
}

// CacheStats reports the resolution cache's current hit/miss/entry counts.
func (fs *FS) CacheStats() cache.Stats {
	return fs.cache.Stats()
}

func now() int64 { return time.Now().Unix() }

// withRead runs fn inside a read-only transaction.
func (fs *FS) withRead(ctx context.Context, op, path string, fn func(tx *storage.Tx) error) error {
	tx, err := fs.backend.BeginRead(ctx)
	if err != nil {
		return wrapStorageErr(op, path, err)
	}
	defer tx.Abort()
	if err := fn(tx); err != nil {
		return translatePublicErr(op, path, err)
	}
	return nil
}

// withWrite runs fn inside a write transaction, committing on success and
// aborting (leaving the delta untouched, per spec.md §4.3's failure
// isolation rule) on any error.
func (fs *FS) withWrite(ctx context.Context, op, path string, fn func(tx *storage.Tx) error) error {
	tx, err := fs.backend.BeginWrite(ctx)
	if err != nil {
		return wrapStorageErr(op, path, err)
	}
	if err := fn(tx); err != nil {
		tx.Abort()
		return translatePublicErr(op, path, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapStorageErr(op, path, err)
	}
	return nil
}

func decodeMetaU64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, newErr("Open", "", Corruption, nil)
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// translatePublicErr maps overlay/resolver sentinel errors onto the
// ErrorKind taxonomy.
func translatePublicErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case overlay.ErrNotFound, resolver.ErrNotFound:
		return newErr(op, path, NotFound, nil)
	case overlay.ErrExists:
		return newErr(op, path, Exists, nil)
	case overlay.ErrNotDirectory, resolver.ErrNotDirectory:
		return newErr(op, path, NotDirectory, nil)
	case overlay.ErrIsDirectory:
		return newErr(op, path, IsDirectory, nil)
	case overlay.ErrNotEmpty:
		return newErr(op, path, NotEmpty, nil)
	case overlay.ErrNotSupported:
		return newErr(op, path, NotSupported, nil)
	case overlay.ErrInvalidArgument:
		return newErr(op, path, InvalidArgument, nil)
	case resolver.ErrTooManyLinks:
		return newErr(op, path, TooManyLinks, nil)
	case pathutil.ErrInvalidComponent:
		return newErr(op, path, InvalidArgument, nil)
	case pathutil.ErrNameTooLong:
		return newErr(op, path, NameTooLong, nil)
	}
	if context.DeadlineExceeded == err || context.Canceled == err {
		return newErr(op, path, Canceled, err)
	}
	return wrapStorageErr(op, path, err)
}

func wrapStorageErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	log.WithFields(log.Fields{"op": op, "path": path}).WithError(err).Debug("agentfs: storage failure")
	return newErr(op, path, IO, err)
}
