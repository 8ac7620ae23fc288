package storage

import (
	"encoding/binary"
	"fmt"
)

// Provenance marks how an inode record arrived in its layer, per spec.md
// §3's central provenance rule.
type Provenance uint8

const (
	ProvenanceBase Provenance = iota
	ProvenanceDelta
	ProvenanceCopiedUp
)

// inodeRecordSize is the packed size of an InodeRecord: five u32/u8 fields
// folded as mode,uid,gid,nlink (4*4) + size,atime,mtime,ctime,origin_ino
// (5*8) + provenance (1).
const inodeRecordSize = 4*4 + 5*8 + 1

// InodeRecord is the in-memory form of spec.md §6's packed inode record:
//
//	mode:u32, uid:u32, gid:u32, nlink:u32, size:u64,
//	atime:i64, mtime:i64, ctime:i64, provenance:u8, origin_ino:u64
type InodeRecord struct {
	Mode       uint32
	Uid        uint32
	Gid        uint32
	Nlink      uint32
	Size       uint64
	Atime      int64
	Mtime      int64
	Ctime      int64
	Provenance Provenance
	OriginIno  uint64
}

// IsDir reports whether the record describes a directory.
func (r *InodeRecord) IsDir() bool { return r.Mode&ModeMask == ModeDir }

// IsFile reports whether the record describes a regular file.
func (r *InodeRecord) IsFile() bool { return r.Mode&ModeMask == ModeFile }

// IsSymlink reports whether the record describes a symbolic link.
func (r *InodeRecord) IsSymlink() bool { return r.Mode&ModeMask == ModeSymlink }

// Encode packs the record little-endian, matching spec.md §6 exactly.
func (r *InodeRecord) Encode() []byte {
	buf := make([]byte, inodeRecordSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], r.Mode)
	le.PutUint32(buf[4:8], r.Uid)
	le.PutUint32(buf[8:12], r.Gid)
	le.PutUint32(buf[12:16], r.Nlink)
	le.PutUint64(buf[16:24], r.Size)
	le.PutUint64(buf[24:32], uint64(r.Atime))
	le.PutUint64(buf[32:40], uint64(r.Mtime))
	le.PutUint64(buf[40:48], uint64(r.Ctime))
	buf[48] = byte(r.Provenance)
	le.PutUint64(buf[49:57], r.OriginIno)
	return buf
}

// DecodeInodeRecord unpacks a record previously produced by Encode.
func DecodeInodeRecord(buf []byte) (*InodeRecord, error) {
	if len(buf) != inodeRecordSize {
		return nil, fmt.Errorf("%w: inode record has %d bytes, want %d", ErrCorruption, len(buf), inodeRecordSize)
	}
	le := binary.LittleEndian
	return &InodeRecord{
		Mode:       le.Uint32(buf[0:4]),
		Uid:        le.Uint32(buf[4:8]),
		Gid:        le.Uint32(buf[8:12]),
		Nlink:      le.Uint32(buf[12:16]),
		Size:       le.Uint64(buf[16:24]),
		Atime:      int64(le.Uint64(buf[24:32])),
		Mtime:      int64(le.Uint64(buf[32:40])),
		Ctime:      int64(le.Uint64(buf[40:48])),
		Provenance: Provenance(buf[48]),
		OriginIno:  le.Uint64(buf[49:57]),
	}, nil
}
