// Package storage implements the transactional key-value contract of
// spec.md §4.1 on top of SQLite (via bun + go-libsql), plus the typed key
// encoding of §6 and the packed inode record format.
//
// Everything above this package — the inode table, directory store,
// whiteout set, and overlay engine — speaks only through Backend and Tx;
// no other package issues SQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/agentfs/agentfs/internal/util"
)

// Backend owns the single SQLite-backed key-value store described in
// spec.md §4.1. It is the only component that issues SQL; the inode table,
// directory store, and overlay engine all use the typed key builders in
// keys.go on top of Get/Put/Delete/ScanPrefix.
type Backend struct {
	path  string // "" for :memory:
	db    *sql.DB
	bunDB *bun.DB

	writeMu sync.Mutex   // serializes writers (one Storage Backend, one writer at a time)
	flock   *flock.Flock // advisory cross-process lock; nil for :memory:
}

// IsMemory reports whether the backend is the non-persistent in-memory mode.
func (b *Backend) IsMemory() bool { return b.path == "" }

// Create opens a brand-new database at path (or ":memory:") and installs
// the kv schema. It fails with an error wrapping ErrStorage if a file
// already exists at path.
func Create(path string, ctx DBContext) (*Backend, error) {
	if path != "" && path != ":memory:" {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: file already exists: %s", ErrStorage, path)
		}
	}
	b, err := open(path, ctx, true)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Open opens an existing database at path. Use ":memory:" (or "") for the
// non-persistent mode described in spec.md §4.1.
func Open(path string, ctx DBContext) (*Backend, error) {
	if path != "" && path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: database not found: %s", ErrStorage, path)
		}
	}
	return open(path, ctx, false)
}

func open(path string, ctx DBContext, create bool) (*Backend, error) {
	memory := path == "" || path == ":memory:"

	var dsn string
	if memory {
		dsn = "file::memory:?cache=shared"
	} else {
		dsn = BuildDSN(path, ctx)
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorage, err)
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db, ctx, memory); err != nil {
		db.Close()
		return nil, err
	}

	if create {
		if err := execStatements(db, kvSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: create schema: %v", ErrStorage, err)
		}
	}

	b := &Backend{
		path:  strings.TrimSuffix(path, ""),
		db:    db,
		bunDB: bun.NewDB(db, sqlitedialect.New()),
	}
	if memory {
		b.path = ""
	}

	if !memory {
		b.flock = flock.New(path + ".lock")
		locked, err := b.flock.TryLock()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: acquire lock: %v", ErrStorage, err)
		}
		if !locked {
			db.Close()
			return nil, fmt.Errorf("%w: database %s is already open by another process", ErrStorage, path)
		}
	}

	if create {
		if err := b.initMeta(); err != nil {
			b.Close()
			return nil, err
		}
	}

	log.WithFields(log.Fields{"path": path, "memory": memory, "create": create}).Debug("storage: opened backend")
	return b, nil
}

// applyPragmas sets the PRAGMAs a fresh libsql connection needs explicitly:
// the driver ignores DSN-encoded pragma parameters other than busy_timeout.
func applyPragmas(db *sql.DB, ctx DBContext, memory bool) error {
	run := func(pragma string) error {
		rows, err := db.Query(pragma)
		if err != nil {
			return err
		}
		return rows.Close()
	}

	busyTimeout := GetBusyTimeout(ctx)
	if err := run(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout)); err != nil {
		return fmt.Errorf("%w: set busy_timeout: %v", ErrStorage, err)
	}
	if !memory {
		if err := run("PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("%w: set journal_mode=WAL: %v", ErrStorage, err)
		}
	}
	if err := run("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("%w: set synchronous=NORMAL: %v", ErrStorage, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("%w: enable foreign_keys: %v", ErrStorage, err)
	}
	return nil
}

func (b *Backend) initMeta() error {
	tx, err := b.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	defer tx.Abort()

	if err := tx.Put(MetaKey("version"), []byte(SchemaVersion)); err != nil {
		return err
	}
	if err := tx.Put(MetaKey("root_ino"), EncodeU64(RootIno)); err != nil {
		return err
	}
	if err := tx.Put(MetaKey("next_ino"), EncodeU64(RootIno+1)); err != nil {
		return err
	}
	if err := tx.Put(MetaKey("max_base_ino"), EncodeU64(0)); err != nil {
		return err
	}

	// The root directory is always present in the delta after first mount
	// (spec's data-model rule for the reserved root inode), with no parent
	// DirEntry of its own: the resolver starts every walk at RootIno
	// directly rather than looking it up by name.
	rootNow := time.Now().Unix()
	root := &InodeRecord{
		Mode: DefaultDirMode, Nlink: 2,
		Atime: rootNow, Mtime: rootNow, Ctime: rootNow,
		Provenance: ProvenanceDelta,
	}
	if err := tx.Put(InodeKey(LayerDelta, RootIno), root.Encode()); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the backend's database handle and advisory lock.
func (b *Backend) Close() error {
	if b.flock != nil {
		_ = b.flock.Unlock()
	}
	return b.db.Close()
}

func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	return util.IsDatabaseLocked(err) || strings.Contains(err.Error(), "SQLITE_BUSY")
}

var errAbortedTx = errors.New("storage: transaction aborted")
