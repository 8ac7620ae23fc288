package overlay

import (
	"github.com/agentfs/agentfs/internal/storage"
)

// ReadContent returns the bytes of ino in [offset, offset+length), reading
// from layer (the layer GetInode reported as currently serving ino).
// Reading past size yields fewer than length bytes, matching a short read.
func (e *Engine) ReadContent(tx *storage.Tx, layer storage.Layer, ino uint64, size uint64, offset, length uint64) ([]byte, error) {
	if offset >= size {
		return nil, nil
	}
	end := offset + length
	if end > size {
		end = size
	}

	out := make([]byte, end-offset)
	rows, err := tx.ScanPrefix(storage.ChunkPrefix(layer, ino))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		chunkOffset, err := storage.ChunkOffsetFromKey(r.Key, storage.ChunkPrefix(layer, ino))
		if err != nil {
			return nil, err
		}
		chunkEnd := chunkOffset + uint64(len(r.Value))
		if chunkEnd <= offset || chunkOffset >= end {
			continue
		}
		srcStart := uint64(0)
		dstStart := chunkOffset
		if chunkOffset < offset {
			srcStart = offset - chunkOffset
			dstStart = offset
		}
		srcEnd := uint64(len(r.Value))
		if chunkEnd > end {
			srcEnd -= chunkEnd - end
		}
		copy(out[dstStart-offset:], r.Value[srcStart:srcEnd])
	}
	return out, nil
}

// WriteContent overwrites [offset, offset+len(data)) of ino in layer
// (LayerDelta for Public API writes, which copy up first; LayerBase only
// when the Seed Importer writes seeded content),
// growing the file and zero-filling any gap if offset is beyond the
// current size. Returns the new total size.
func (e *Engine) WriteContent(tx *storage.Tx, layer storage.Layer, ino uint64, curSize uint64, offset uint64, data []byte) (newSize uint64, err error) {
	end := offset + uint64(len(data))
	newSize = curSize
	if end > newSize {
		newSize = end
	}

	full, err := e.readAllContent(tx, layer, ino, curSize)
	if err != nil {
		return 0, err
	}
	if uint64(len(full)) < newSize {
		grown := make([]byte, newSize)
		copy(grown, full)
		full = grown
	}
	copy(full[offset:], data)

	if err := e.deleteAllChunks(tx, layer, ino); err != nil {
		return 0, err
	}
	if err := e.writeChunks(tx, layer, ino, full); err != nil {
		return 0, err
	}
	return newSize, nil
}

// Truncate resizes ino's content to newSize, zero-filling on growth and
// discarding trailing bytes on shrink.
func (e *Engine) Truncate(tx *storage.Tx, layer storage.Layer, ino uint64, curSize, newSize uint64) error {
	full, err := e.readAllContent(tx, layer, ino, curSize)
	if err != nil {
		return err
	}
	resized := make([]byte, newSize)
	n := uint64(len(full))
	if n > newSize {
		n = newSize
	}
	copy(resized, full[:n])

	if err := e.deleteAllChunks(tx, layer, ino); err != nil {
		return err
	}
	return e.writeChunks(tx, layer, ino, resized)
}

func (e *Engine) readAllContent(tx *storage.Tx, layer storage.Layer, ino uint64, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	out := make([]byte, size)
	rows, err := tx.ScanPrefix(storage.ChunkPrefix(layer, ino))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		offset, err := storage.ChunkOffsetFromKey(r.Key, storage.ChunkPrefix(layer, ino))
		if err != nil {
			return nil, err
		}
		if offset >= size {
			continue
		}
		n := uint64(len(r.Value))
		if offset+n > size {
			n = size - offset
		}
		copy(out[offset:offset+n], r.Value[:n])
	}
	return out, nil
}

func (e *Engine) writeChunks(tx *storage.Tx, layer storage.Layer, ino uint64, data []byte) error {
	for off := 0; off < len(data); off += storage.ChunkSize {
		end := off + storage.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := tx.Put(storage.ChunkKey(layer, ino, uint64(off)), data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// GetXattr returns ino's xattr value for name.
func (e *Engine) GetXattr(tx *storage.Tx, layer storage.Layer, ino uint64, name string) ([]byte, bool, error) {
	return tx.Get(storage.XattrKey(layer, ino, name))
}

// SetXattr writes ino's xattr value for name in layer.
func (e *Engine) SetXattr(tx *storage.Tx, layer storage.Layer, ino uint64, name string, value []byte) error {
	return tx.Put(storage.XattrKey(layer, ino, name), value)
}

// RemoveXattr deletes ino's xattr value for name in layer.
func (e *Engine) RemoveXattr(tx *storage.Tx, layer storage.Layer, ino uint64, name string) error {
	return tx.Delete(storage.XattrKey(layer, ino, name))
}

// ListXattr returns every xattr name set on ino in layer.
func (e *Engine) ListXattr(tx *storage.Tx, layer storage.Layer, ino uint64) ([]string, error) {
	rows, err := tx.ScanPrefix(storage.XattrPrefix(layer, ino))
	if err != nil {
		return nil, err
	}
	prefix := storage.XattrPrefix(layer, ino)
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = storage.DirNameFromKey(r.Key, prefix)
	}
	return names, nil
}
