package sim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultPageSize is the backing-page granularity of sparse memories.
const DefaultPageSize = 4096

// Memory is a sparse byte-addressable store. Only written pages consume host
// memory; reads of unmapped pages return zeros. HBM, L2, and per-block SMEM
// all share this representation with different capacities. There are no
// alignment constraints.
type Memory struct {
	capacity int64
	pages    map[int64][]byte
}

// NewMemory creates an empty store with the given capacity in bytes.
func NewMemory(capacity int64) *Memory {
	if capacity <= 0 {
		panic(fmt.Sprintf("memory capacity must be > 0, got %d", capacity))
	}
	return &Memory{
		capacity: capacity,
		pages:    make(map[int64][]byte),
	}
}

// Capacity returns the addressable size in bytes.
func (m *Memory) Capacity() int64 {
	return m.capacity
}

// MappedBytes returns the host bytes currently backing the store.
func (m *Memory) MappedBytes() int64 {
	return int64(len(m.pages)) * DefaultPageSize
}

func (m *Memory) checkRange(offset int64, n int) error {
	if offset < 0 || n < 0 || offset+int64(n) > m.capacity {
		return fmt.Errorf("memory access [%d, %d) out of range [0, %d)", offset, offset+int64(n), m.capacity)
	}
	return nil
}

// Read copies n bytes starting at offset. Bytes never written read as zero.
func (m *Memory) Read(offset int64, n int) ([]byte, error) {
	if err := m.checkRange(offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for done := 0; done < n; {
		addr := offset + int64(done)
		page := addr / DefaultPageSize
		pageOff := int(addr % DefaultPageSize)
		span := DefaultPageSize - pageOff
		if span > n-done {
			span = n - done
		}
		if buf, ok := m.pages[page]; ok {
			copy(out[done:done+span], buf[pageOff:pageOff+span])
		}
		done += span
	}
	return out, nil
}

// Write stores p starting at offset, materializing pages on demand.
func (m *Memory) Write(offset int64, p []byte) error {
	if err := m.checkRange(offset, len(p)); err != nil {
		return err
	}
	for done := 0; done < len(p); {
		addr := offset + int64(done)
		page := addr / DefaultPageSize
		pageOff := int(addr % DefaultPageSize)
		span := DefaultPageSize - pageOff
		if span > len(p)-done {
			span = len(p) - done
		}
		buf, ok := m.pages[page]
		if !ok {
			buf = make([]byte, DefaultPageSize)
			m.pages[page] = buf
		}
		copy(buf[pageOff:pageOff+span], p[done:done+span])
		done += span
	}
	return nil
}

// ReadFloat32 reads a little-endian float32 at offset.
func (m *Memory) ReadFloat32(offset int64) (float32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// WriteFloat32 writes a little-endian float32 at offset.
func (m *Memory) WriteFloat32(offset int64, v float32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return m.Write(offset, b[:])
}

// ReadUint32 reads a little-endian uint32 at offset.
func (m *Memory) ReadUint32(offset int64) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteUint32 writes a little-endian uint32 at offset.
func (m *Memory) WriteUint32(offset int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(offset, b[:])
}
