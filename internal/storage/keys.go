package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Layer identifies which of the two inode/dentry/content namespaces a key
// belongs to, per spec.md §6's "INODE/<ino> (layer-specific: BASE/<ino>,
// DELTA/<ino>)" note.
type Layer string

const (
	LayerBase  Layer = "BASE"
	LayerDelta Layer = "DELTA"
)

// Key prefixes, matching spec.md §6's storage layout table verbatim.
const (
	prefixMeta  = "META/"
	prefixInode = "INODE/"
	prefixDir   = "DIR/"
	prefixWhite = "WHITE/"
	prefixChunk = "CHUNK/"
	prefixXattr = "XATTR/"
	prefixSym   = "SYM/"
)

// MetaKey builds a META/<name> key (META/version, META/next_ino, META/root_ino).
func MetaKey(name string) string {
	return prefixMeta + name
}

// InodeKey builds an INODE/<layer>/<ino> key.
func InodeKey(layer Layer, ino uint64) string {
	return prefixInode + string(layer) + "/" + formatIno(ino)
}

// InodeLayerPrefix builds the INODE/<layer>/ prefix used to enumerate every
// inode id present in a single layer (statfs usage accounting).
func InodeLayerPrefix(layer Layer) string {
	return prefixInode + string(layer) + "/"
}

// DirKey builds a DIR/<layer>/<parent>/<name> key.
func DirKey(layer Layer, parent uint64, name string) string {
	return prefixDir + string(layer) + "/" + formatIno(parent) + "/" + name
}

// DirPrefix builds the DIR/<layer>/<parent>/ prefix used to enumerate all
// children of parent within a single layer.
func DirPrefix(layer Layer, parent uint64) string {
	return prefixDir + string(layer) + "/" + formatIno(parent) + "/"
}

// DirNameFromKey extracts the trailing name component from a DIR key
// produced by DirPrefix + name.
func DirNameFromKey(key string, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}

// WhiteKey builds a WHITE/<parent>/<name> key. Whiteouts are layer-less:
// they exist only conceptually "in the delta" and hide a base binding.
func WhiteKey(parent uint64, name string) string {
	return prefixWhite + formatIno(parent) + "/" + name
}

// WhitePrefix builds the WHITE/<parent>/ prefix.
func WhitePrefix(parent uint64) string {
	return prefixWhite + formatIno(parent) + "/"
}

// ChunkKey builds a CHUNK/<layer>/<ino>/<offset> key. offset is the chunk's
// starting byte offset, zero-padded so lexicographic order matches numeric
// order (required for the backend's ordered prefix scan).
func ChunkKey(layer Layer, ino uint64, offset uint64) string {
	return prefixChunk + string(layer) + "/" + formatIno(ino) + "/" + formatOffset(offset)
}

// ChunkPrefix builds the CHUNK/<layer>/<ino>/ prefix used to enumerate all
// chunks of a file within a single layer.
func ChunkPrefix(layer Layer, ino uint64) string {
	return prefixChunk + string(layer) + "/" + formatIno(ino) + "/"
}

// ChunkOffsetFromKey parses the trailing offset component of a chunk key.
func ChunkOffsetFromKey(key, prefix string) (uint64, error) {
	return ParseUintSuffix(key, prefix)
}

// ParseUintSuffix parses the decimal integer trailing prefix in key — used
// for chunk offsets and, via InodeLayerPrefix, for inode ids.
func ParseUintSuffix(key, prefix string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
}

// XattrKey builds an XATTR/<layer>/<ino>/<name> key.
func XattrKey(layer Layer, ino uint64, name string) string {
	return prefixXattr + string(layer) + "/" + formatIno(ino) + "/" + name
}

// XattrPrefix builds the XATTR/<layer>/<ino>/ prefix.
func XattrPrefix(layer Layer, ino uint64) string {
	return prefixXattr + string(layer) + "/" + formatIno(ino) + "/"
}

// SymKey builds a SYM/<layer>/<ino> key.
func SymKey(layer Layer, ino uint64) string {
	return prefixSym + string(layer) + "/" + formatIno(ino)
}

func formatIno(ino uint64) string {
	return strconv.FormatUint(ino, 10)
}

// formatOffset zero-pads to 20 digits (enough for any uint64) so that byte
// offsets sort the same way lexicographically and numerically.
func formatOffset(offset uint64) string {
	return fmt.Sprintf("%020d", offset)
}
