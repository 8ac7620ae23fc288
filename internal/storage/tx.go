package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"github.com/agentfs/agentfs/internal/util"
)

// kvRow mirrors the single kv(key, value) table through bun.
type kvRow struct {
	bun.BaseModel `bun:"table:kv"`

	Key   string `bun:"key,pk"`
	Value []byte `bun:"value"`
}

// Tx is a single Storage Backend transaction. Writers are serialized by
// Backend.BeginWrite. The backend keeps a single pooled database
// connection (see open), so a transaction of either kind waits until any
// other open transaction has committed or aborted: readers do not run
// concurrently with each other or with the writer.
type Tx struct {
	ctx      context.Context
	tx       bun.Tx
	backend  *Backend
	write    bool
	done     bool
	unlockFn func()
}

// BeginWrite starts a write transaction. Only one write transaction may be
// active on a Backend at a time; callers block until any prior writer
// commits or aborts.
func (b *Backend) BeginWrite(ctx context.Context) (*Tx, error) {
	b.writeMu.Lock()
	tx, err := b.bunDB.BeginTx(ctx, nil)
	if err != nil {
		b.writeMu.Unlock()
		return nil, fmt.Errorf("%w: begin write: %v", ErrStorage, err)
	}
	return &Tx{ctx: ctx, tx: tx, backend: b, write: true, unlockFn: b.writeMu.Unlock}, nil
}

// BeginRead starts a read-only transaction. The libsql driver rejects
// sql.TxOptions{ReadOnly: true}, so the SQL transaction is a plain one;
// read-only-ness is enforced by Tx itself, whose Put and Delete fail.
func (b *Backend) BeginRead(ctx context.Context) (*Tx, error) {
	tx, err := b.bunDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin read: %v", ErrStorage, err)
	}
	return &Tx{ctx: ctx, tx: tx, backend: b, write: false}, nil
}

// Commit commits the transaction, retrying transient "database is locked"
// conflicts with the backoff in internal/util before surfacing
// ErrConflict.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()

	err := util.Retry(t.ctx, t.tx.Commit, util.DatabaseRetryOptions(t.ctx)...)
	if err != nil && isDatabaseLocked(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return nil
}

// Abort discards the transaction. Safe to call after Commit (no-op) and
// safe to call multiple times.
func (t *Tx) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()

	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("%w: rollback: %v", ErrStorage, err)
	}
	return nil
}

func (t *Tx) release() {
	if t.write && t.unlockFn != nil {
		t.unlockFn()
	}
}

// Get fetches the value at key. found is false if the key does not exist.
func (t *Tx) Get(key string) (value []byte, found bool, err error) {
	var row kvRow
	err = t.tx.NewSelect().Model(&row).Where("key = ?", key).Scan(t.ctx)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStorage, key, err)
	}
	return row.Value, true, nil
}

// Put writes key=value, inserting or overwriting.
func (t *Tx) Put(key string, value []byte) error {
	if !t.write {
		return fmt.Errorf("%w: write on read-only transaction", ErrStorage)
	}
	_, err := t.tx.NewInsert().
		Model(&kvRow{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(t.ctx)
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStorage, key, err)
	}
	return nil
}

// Delete removes key. It is not an error to delete a missing key.
func (t *Tx) Delete(key string) error {
	if !t.write {
		return fmt.Errorf("%w: write on read-only transaction", ErrStorage)
	}
	_, err := t.tx.NewDelete().Model((*kvRow)(nil)).Where("key = ?", key).Exec(t.ctx)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStorage, key, err)
	}
	return nil
}

// ScanPrefix returns every key (and matching value) with the given prefix,
// in lexicographic key order — the ordering spec.md §4.2 requires for
// directory enumeration.
func (t *Tx) ScanPrefix(prefix string) ([]KV, error) {
	var rows []kvRow
	err := t.tx.NewSelect().
		Model(&rows).
		Where("key >= ?", prefix).
		Where("key < ?", prefixUpperBound(prefix)).
		OrderExpr("key ASC").
		Scan(t.ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrStorage, prefix, err)
	}
	out := make([]KV, len(rows))
	for i, r := range rows {
		out[i] = KV{Key: r.Key, Value: r.Value}
	}
	// bun/sqlite already returns ASC order; sort defensively so callers
	// never depend on driver-specific collation quirks.
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// KV is a single key-value pair returned by ScanPrefix.
type KV struct {
	Key   string
	Value []byte
}

// prefixUpperBound returns the smallest string greater than every string
// with the given prefix, for use as an exclusive upper bound in a range
// scan (standard "increment the last byte" trick).
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// All 0xff bytes (never happens with UTF-8 path/key text): no upper bound.
	return string(append(b, 0xff))
}

// EncodeU64 packs v little-endian, the encoding used by every META/* value
// and every DIR/* child-inode value.
func EncodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// DecodeU64 unpacks a value previously produced by EncodeU64.
func DecodeU64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("%w: expected 8-byte value, got %d", ErrCorruption, len(buf))
	}
	return binary.LittleEndian.Uint64(buf), nil
}
