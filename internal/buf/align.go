package buf

// Alignment helpers for page-granular address arithmetic.
// All alignments must be powers of two.

// AlignDown rounds n down to a multiple of align.
//
// Example:
//
//	AlignDown(4097, 4096) = 4096
//	AlignDown(4096, 4096) = 4096
func AlignDown(n, align uint64) uint64 {
	return n &^ (align - 1)
}

// AlignUp rounds n up to a multiple of align. Values within align-1 of
// the top of the address space wrap to zero; callers clamp first.
//
// Example:
//
//	AlignUp(1, 4096)    = 4096
//	AlignUp(4096, 4096) = 4096
//	AlignUp(4097, 4096) = 8192
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// DivCeil returns n/d rounded up.
func DivCeil(n, d uint64) uint64 {
	return (n + d - 1) / d
}
