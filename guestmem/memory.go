// Package guestmem maps guest memory into the host address space and
// write-protects the pages the device tracker is counting.
//
// A Memory implements devicetrack.Protector: clean tracked pages are made
// read-only so that the next CPU write faults and can be reported to the
// coherency tracker, dirty pages are writable.
package guestmem

import (
	"errors"
	"fmt"

	"github.com/joshuapare/gpucoherency/internal/buf"
	"github.com/joshuapare/gpucoherency/internal/pagebits"
)

var (
	// ErrClosed is returned by operations on a closed Memory.
	ErrClosed = errors.New("guestmem: memory closed")

	// ErrUnaligned is returned by Map for a base or size that is not a
	// multiple of the guest page size.
	ErrUnaligned = errors.New("guestmem: range not page aligned")

	// ErrPageSize is returned by Map when host pages cannot be protected at
	// guest page granularity.
	ErrPageSize = errors.New("guestmem: host page size incompatible with guest pages")
)

// Memory is a host mapping of the guest range [Base, Base+len(Bytes)).
//
// NOT thread-safe. Protect is expected to be driven by the device tracker
// of a single coherency tracker.
type Memory struct {
	base uint64
	data []byte
}

// Map allocates a zeroed, writable host mapping for [base, base+size).
func Map(base, size uint64) (*Memory, error) {
	if size == 0 || base%pagebits.PageSize != 0 || size%pagebits.PageSize != 0 {
		return nil, fmt.Errorf("%w: base=%#x size=%#x", ErrUnaligned, base, size)
	}
	if _, ok := buf.AddOverflowSafe(base, size); !ok {
		return nil, fmt.Errorf("guestmem: range overflows: base=%#x size=%#x", base, size)
	}
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("guestmem: size too large to map (%d bytes)", size)
	}
	data, err := mapAnon(int(size))
	if err != nil {
		return nil, err
	}
	return &Memory{base: base, data: data}, nil
}

// Base returns the guest address of the first mapped byte.
func (m *Memory) Base() uint64 { return m.base }

// Size returns the number of mapped bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

// Bytes returns the mapping. Writes to protected pages fault.
func (m *Memory) Bytes() []byte { return m.data }

// Slice returns the host bytes backing the guest range [addr, addr+size).
func (m *Memory) Slice(addr, size uint64) ([]byte, error) {
	if m.data == nil {
		return nil, ErrClosed
	}
	if addr < m.base {
		return nil, fmt.Errorf("guestmem: address %#x below base %#x", addr, m.base)
	}
	b, ok := buf.Slice(m.data, addr-m.base, size)
	if !ok {
		return nil, fmt.Errorf("guestmem: range %#x+%#x outside mapping", addr, size)
	}
	return b, nil
}

// Protect makes every mapped page overlapping [addr, addr+size) read-only
// when tracked is set and writable otherwise. The parts of the range outside
// the mapping are ignored.
func (m *Memory) Protect(addr, size uint64, tracked bool) error {
	if m.data == nil {
		return ErrClosed
	}
	limit := m.base + uint64(len(m.data))
	lo := max(addr, m.base)
	hi := buf.EndClamped(addr, size, limit)
	if hi <= lo {
		return nil
	}
	off := buf.AlignDown(lo-m.base, pagebits.PageSize)
	end := buf.AlignUp(hi-m.base, pagebits.PageSize)
	if err := protect(m.data[off:end], !tracked); err != nil {
		return fmt.Errorf("guestmem: protect %#x+%#x: %w", m.base+off, end-off, err)
	}
	return nil
}

// Close releases the mapping. Calling Close more than once is a no-op.
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}
	err := unmap(m.data)
	m.data = nil
	return err
}
