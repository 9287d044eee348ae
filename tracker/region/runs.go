package region

import "github.com/joshuapare/gpucoherency/internal/pagebits"

// runCollector coalesces page runs reported word by word into maximal
// contiguous runs. Runs must be added in ascending order.
type runCollector struct {
	pending    bool
	begin, end uint64 // window-relative page indices, end exclusive
	emit       func(begin, end uint64)
}

func (c *runCollector) addWord(index int, word uint64) {
	if word == 0 {
		return
	}
	base := uint64(index) * pagebits.PagesPerWord
	pagebits.ForEachRun(word, func(first, n uint) {
		c.add(base+uint64(first), base+uint64(first+n))
	})
}

func (c *runCollector) add(begin, end uint64) {
	if c.pending && c.end == begin {
		c.end = end
		return
	}
	c.flush()
	c.begin, c.end, c.pending = begin, end, true
}

func (c *runCollector) flush() {
	if !c.pending {
		return
	}
	c.pending = false
	c.emit(c.begin, c.end)
}
