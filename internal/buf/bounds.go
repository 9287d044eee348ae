package buf

import (
	"fmt"
	"math"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uint64.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// EndClamped returns addr+size, saturating at limit.
// A sum that overflows uint64 is also clamped to limit.
func EndClamped(addr, size, limit uint64) uint64 {
	end, ok := AddOverflowSafe(addr, size)
	if !ok || end > limit {
		return limit
	}
	return end
}

// CheckRange validates that [off, off+n) lies inside a buffer of bufLen bytes.
// Returns the end offset if valid, or an error describing the failure.
//
//	end, err := buf.CheckRange(uint64(len(data)), off, n)
//	if err != nil {
//	    return fmt.Errorf("guestmem: %w", err)
//	}
func CheckRange(bufLen, off, n uint64) (uint64, error) {
	end, ok := AddOverflowSafe(off, n)
	if !ok {
		return 0, fmt.Errorf("overflow: offset=%#x + size=%#x", off, n)
	}
	if end > bufLen {
		return 0, fmt.Errorf("bounds: end=%#x > len=%#x", end, bufLen)
	}
	return end, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n uint64) ([]byte, bool) {
	end, err := CheckRange(uint64(len(b)), off, n)
	if err != nil {
		return nil, false
	}
	return b[off:end], true
}
