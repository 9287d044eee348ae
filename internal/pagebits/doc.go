// Package pagebits provides the word-granular page bitmaps that back every
// tracked state of a coherency window.
//
// One bit represents one 4 KiB guest page; 64 pages are packed into a uint64
// word so that "is any page in this word set" is a single zero test and the
// first/last set page of a word is a single trailing/leading zero count.
//
// The storage is a github.com/bits-and-blooms/bitset; the hot path works on
// its underlying word slice directly, and the bitmap maintains its own
// population count so that empty bitmaps can be skipped in O(1).
package pagebits
