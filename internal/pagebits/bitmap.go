package pagebits

import (
	"math/bits"

	"github.com/bits-and-blooms/bitset"
)

// Bitmap is a fixed-size page bitmap with a maintained population count.
//
// NOT thread-safe.
type Bitmap struct {
	set   *bitset.BitSet
	words []uint64 // aliases set's storage; never grown
	count int
}

// New creates a cleared bitmap of numWords words.
func New(numWords int) *Bitmap {
	set := bitset.New(uint(numWords * PagesPerWord))
	return &Bitmap{
		set:   set,
		words: set.Bytes()[:numWords],
	}
}

// NumWords returns the number of words in the bitmap.
func (b *Bitmap) NumWords() int { return len(b.words) }

// Word returns word i.
func (b *Bitmap) Word(i int) uint64 { return b.words[i] }

// Store replaces word i.
func (b *Bitmap) Store(i int, v uint64) {
	old := b.words[i]
	if old == v {
		return
	}
	b.count += bits.OnesCount64(v) - bits.OnesCount64(old)
	b.words[i] = v
}

// Or sets the bits of mask in word i.
func (b *Bitmap) Or(i int, mask uint64) { b.Store(i, b.words[i]|mask) }

// AndNot clears the bits of mask in word i.
func (b *Bitmap) AndNot(i int, mask uint64) { b.Store(i, b.words[i]&^mask) }

// Fill sets every word to v.
func (b *Bitmap) Fill(v uint64) {
	for i := range b.words {
		b.words[i] = v
	}
	b.count = len(b.words) * bits.OnesCount64(v)
}

// Count returns the number of set pages.
func (b *Bitmap) Count() int { return b.count }

// Empty reports whether no page is set.
func (b *Bitmap) Empty() bool { return b.count == 0 }

// Recount recomputes the population count from storage and reports whether
// it agreed with the maintained count.
func (b *Bitmap) Recount() bool {
	actual := int(b.set.Count())
	ok := actual == b.count
	b.count = actual
	return ok
}

// Pages returns the indices of all set pages in ascending order.
func (b *Bitmap) Pages() []uint64 {
	out := make([]uint64, 0, b.count)
	for i, ok := b.set.NextSet(0); ok; i, ok = b.set.NextSet(i + 1) {
		out = append(out, uint64(i))
	}
	return out
}
