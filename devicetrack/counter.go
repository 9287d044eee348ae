// Package devicetrack provides device tracker implementations for the
// coherency tracker.
//
// Counter keeps a reference count per guest page of how many times the page
// has been handed to the device for write tracking. When a page enters or
// leaves the tracked set it optionally informs a Protector, which typically
// write-protects the host mapping of that page so CPU writes can be caught.
package devicetrack

import (
	"fmt"

	"github.com/joshuapare/gpucoherency/internal/buf"
	"github.com/joshuapare/gpucoherency/internal/pagebits"
)

// Protector is informed when a run of pages starts (tracked) or stops
// (!tracked) being counted.
type Protector interface {
	Protect(addr, size uint64, tracked bool) error
}

// Counter is an in-memory page-count map.
//
// NOT thread-safe. It is driven synchronously by the tracker that owns it.
type Counter struct {
	pages     map[uint64]int
	protector Protector
	err       error

	// pending protector run, page indices
	runOpen    bool
	runTracked bool
	runBegin   uint64
	runEnd     uint64
}

// NewCounter creates an empty counter. p may be nil.
func NewCounter(p Protector) *Counter {
	return &Counter{
		pages:     make(map[uint64]int),
		protector: p,
	}
}

// UpdatePagesCachedCount adds delta to the count of every page overlapping
// [addr, addr+size).
//
// A count dropping below zero means the tracker reported more releases than
// acquisitions for a page; that is a logic error and panics.
func (c *Counter) UpdatePagesCachedCount(addr, size uint64, delta int) {
	if size == 0 || delta == 0 {
		return
	}
	first := addr >> pagebits.PageBits
	last := buf.DivCeil(buf.EndClamped(addr, size, ^uint64(0)), pagebits.PageSize)
	for page := first; page < last; page++ {
		prev := c.pages[page]
		value := prev + delta
		if value < 0 {
			panic(fmt.Sprintf("devicetrack: negative cached count for page %#x", page<<pagebits.PageBits))
		}
		if value == 0 {
			delete(c.pages, page)
		} else {
			c.pages[page] = value
		}
		if (prev == 0) != (value == 0) {
			c.transition(page, value > 0)
		}
	}
	c.flushRun()
}

// Count returns the count of the page containing addr.
func (c *Counter) Count(addr uint64) int {
	return c.pages[addr>>pagebits.PageBits]
}

// Total returns the sum of all page counts.
func (c *Counter) Total() int {
	total := 0
	for _, v := range c.pages {
		total += v
	}
	return total
}

// Pages returns the number of pages with a non-zero count.
func (c *Counter) Pages() int { return len(c.pages) }

// Err returns the first error reported by the protector, if any.
func (c *Counter) Err() error { return c.err }

func (c *Counter) transition(page uint64, tracked bool) {
	if c.protector == nil {
		return
	}
	if c.runOpen && c.runTracked == tracked && c.runEnd == page {
		c.runEnd++
		return
	}
	c.flushRun()
	c.runOpen, c.runTracked = true, tracked
	c.runBegin, c.runEnd = page, page+1
}

func (c *Counter) flushRun() {
	if !c.runOpen {
		return
	}
	c.runOpen = false
	err := c.protector.Protect(
		c.runBegin<<pagebits.PageBits,
		(c.runEnd-c.runBegin)<<pagebits.PageBits,
		c.runTracked,
	)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("devicetrack: protect %#x: %w", c.runBegin<<pagebits.PageBits, err)
	}
}
