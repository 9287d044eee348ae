package pagebits

import "math/bits"

// Mask returns a word with bits [lo, hi) set. hi must be <= 64 and lo <= hi.
//
//	Mask(0, 64) = 0xFFFF_FFFF_FFFF_FFFF
//	Mask(2, 5)  = 0b11100
func Mask(lo, hi uint) uint64 {
	if hi-lo >= PagesPerWord {
		return ^uint64(0)
	}
	return ((uint64(1) << (hi - lo)) - 1) << lo
}

// FirstSet returns the index of the lowest set bit. word must be non-zero.
func FirstSet(word uint64) uint {
	return uint(bits.TrailingZeros64(word))
}

// EndSet returns one past the index of the highest set bit. word must be non-zero.
func EndSet(word uint64) uint {
	return PagesPerWord - uint(bits.LeadingZeros64(word))
}

// ForEachRun calls fn for every maximal run of set bits in word, from the
// lowest bit upwards, with the index of the first bit and the run length.
func ForEachRun(word uint64, fn func(first, n uint)) {
	var pos uint
	for word != 0 {
		skip := uint(bits.TrailingZeros64(word))
		pos += skip
		word >>= skip
		run := uint(bits.TrailingZeros64(^word))
		fn(pos, run)
		if run >= PagesPerWord {
			return
		}
		pos += run
		word >>= run
	}
}
