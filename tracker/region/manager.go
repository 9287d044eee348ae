// Package region implements the per-window bit algebra of the coherency
// tracker.
//
// A Manager owns one fixed, page-aligned address window and stores one page
// bitmap per State plus an internal bitmap of pages the device tracker is not
// counting. Every operation works word by word: a partial first and last word
// are masked, whole words in between are tested with a single zero check.
package region

import (
	"math"

	"github.com/joshuapare/gpucoherency/internal/buf"
	"github.com/joshuapare/gpucoherency/internal/pagebits"
)

// Re-exported geometry.
const (
	PageSize     = pagebits.PageSize
	PagesPerWord = pagebits.PagesPerWord
	BytesPerWord = pagebits.BytesPerWord
)

// Manager tracks the coherency state of one address window.
//
// NOT thread-safe. The owning tracker serializes all access.
type Manager struct {
	base     uint64
	numWords int
	device   DeviceTracker
	maps     [numStates + 1]*pagebits.Bitmap
}

// New creates a manager covering numWords words with base address 0.
// The window starts in the default state: every page CPU dirty.
func New(device DeviceTracker, numWords int) *Manager {
	m := &Manager{}
	m.Init(device, numWords)
	return m
}

// Init (re)initializes m in place. Used by pools that store managers by value.
func (m *Manager) Init(device DeviceTracker, numWords int) {
	m.base = 0
	m.numWords = numWords
	m.device = device
	for i := range m.maps {
		m.maps[i] = pagebits.New(numWords)
	}
	m.Reset()
}

// Reset restores the default content without notifying the device tracker:
// every page CPU dirty and untracked, every other state clear.
func (m *Manager) Reset() {
	for i, b := range m.maps {
		if State(i) == StateCPU || State(i) == untracked {
			b.Fill(^uint64(0))
		} else {
			b.Fill(0)
		}
	}
}

// SetCPUAddress rebases the window.
func (m *Manager) SetCPUAddress(base uint64) { m.base = base }

// CPUAddress returns the window's base address.
func (m *Manager) CPUAddress() uint64 { return m.base }

// SizeBytes returns the number of bytes covered by the window.
func (m *Manager) SizeBytes() uint64 { return uint64(m.numWords) * BytesPerWord }

// Count returns the number of pages with state set.
func (m *Manager) Count(state State) int { return m.maps[state].Count() }

// HasCachedWrites reports whether any page has a pending CPU write.
func (m *Manager) HasCachedWrites() bool { return !m.maps[StatePending].Empty() }

// ModifiedRegion returns the smallest window-relative byte range [begin, end)
// covering every page with state set inside [offset, offset+size), or (0, 0)
// when there is none. GPU queries ignore pages the device is not tracking.
func (m *Manager) ModifiedRegion(state State, offset, size uint64) (uint64, uint64) {
	bm := m.maps[state]
	if bm.Empty() {
		return 0, 0
	}
	unt := m.maps[untracked]
	begin, end := uint64(math.MaxUint64), uint64(0)
	m.iterateWords(offset, size, func(index int, mask uint64) bool {
		if state == StateGPU {
			mask &^= unt.Word(index)
		}
		word := bm.Word(index) & mask
		if word == 0 {
			return false
		}
		pageIndex := uint64(index) * PagesPerWord
		begin = min(begin, pageIndex+uint64(pagebits.FirstSet(word)))
		end = pageIndex + uint64(pagebits.EndSet(word))
		return false
	})
	if begin >= end {
		return 0, 0
	}
	return begin * PageSize, end * PageSize
}

// IsRegionModified reports whether any page in the window-relative range
// [offset, offset+size) has state set.
func (m *Manager) IsRegionModified(state State, offset, size uint64) bool {
	bm := m.maps[state]
	if bm.Empty() {
		return false
	}
	unt := m.maps[untracked]
	result := false
	m.iterateWords(offset, size, func(index int, mask uint64) bool {
		if state == StateGPU {
			mask &^= unt.Word(index)
		}
		if bm.Word(index)&mask != 0 {
			result = true
		}
		return result
	})
	return result
}

// ChangeRegionState sets or clears state for every page overlapping the
// absolute range [address, address+size).
//
// Setting StateCPU also discards pending writes of the range, since they are
// now committed. Clearing StateCPU discards pending writes only on pages that
// were CPU dirty. StateCPU and StatePending changes move pages in or out of
// the device tracker's set and are reported to it.
func (m *Manager) ChangeRegionState(state State, set bool, address, size uint64) {
	offset, size := m.relative(address, size)
	target := m.maps[state]
	unt := m.maps[untracked]
	pending := m.maps[StatePending]
	notify := m.notifier(!set)
	m.iterateWords(offset, size, func(index int, mask uint64) bool {
		if state.notifies() {
			notify.addWord(index, changedBits(unt.Word(index), mask, !set))
		}
		if set {
			target.Or(index, mask)
			if state.notifies() {
				unt.Or(index, mask)
			}
			if state == StateCPU {
				pending.AndNot(index, mask)
			}
		} else {
			if state == StateCPU {
				pending.AndNot(index, target.Word(index)&mask)
			}
			target.AndNot(index, mask)
			if state.notifies() {
				unt.AndNot(index, mask)
			}
		}
		return false
	})
	notify.flush()
}

// ForEachModifiedRange calls fn(addr, size) for every maximal run of pages
// with state set inside the absolute range [address, address+size), in
// ascending order. Runs continue across word boundaries.
//
// With clear set, the state of the whole queried range is cleared as it is
// scanned; for StateCPU and StatePending the range also becomes tracked by
// the device.
func (m *Manager) ForEachModifiedRange(state State, clear bool, address, size uint64, fn func(addr, size uint64)) {
	offset, size := m.relative(address, size)
	bm := m.maps[state]
	track := clear && state.notifies()
	if bm.Empty() && !track {
		return
	}
	unt := m.maps[untracked]
	notify := m.notifier(true)
	ranges := runCollector{emit: func(begin, end uint64) {
		fn(m.base+begin*PageSize, (end-begin)*PageSize)
	}}
	m.iterateWords(offset, size, func(index int, mask uint64) bool {
		if state == StateGPU {
			mask &^= unt.Word(index)
		}
		word := bm.Word(index) & mask
		if clear {
			if track {
				notify.addWord(index, unt.Word(index)&mask)
			}
			bm.AndNot(index, mask)
			if track {
				unt.AndNot(index, mask)
			}
		}
		ranges.addWord(index, word)
		return false
	})
	notify.flush()
	ranges.flush()
}

// FlushCachedWrites promotes every pending write of the window to CPU dirty.
func (m *Manager) FlushCachedWrites() {
	pending := m.maps[StatePending]
	if pending.Empty() {
		return
	}
	cpu := m.maps[StateCPU]
	unt := m.maps[untracked]
	notify := m.notifier(false)
	for i := 0; i < m.numWords; i++ {
		cached := pending.Word(i)
		if cached == 0 {
			continue
		}
		notify.addWord(i, changedBits(unt.Word(i), cached, false))
		unt.Or(i, cached)
		cpu.Or(i, cached)
		pending.Store(i, 0)
	}
	notify.flush()
}

// DebugPages returns the absolute address of every page with state set.
func (m *Manager) DebugPages(state State) []uint64 {
	pages := m.maps[state].Pages()
	for i, p := range pages {
		pages[i] = m.base + p*PageSize
	}
	return pages
}

// VerifyCounts recomputes every maintained population count from the
// bitmaps and reports whether all of them were accurate. Inaccurate counts
// are repaired.
func (m *Manager) VerifyCounts() bool {
	ok := true
	for _, b := range m.maps {
		if !b.Recount() {
			ok = false
		}
	}
	return ok
}

// relative converts an absolute range into a window-relative one, clipping
// the part below the base address.
func (m *Manager) relative(address, size uint64) (uint64, uint64) {
	if address >= m.base {
		return address - m.base, size
	}
	skip := m.base - address
	if skip >= size {
		return 0, 0
	}
	return 0, size - skip
}

// iterateWords calls fn for every word overlapping the window-relative range
// [offset, offset+size) with a mask of the pages inside the range. Partial
// pages count whole. fn returns true to stop early.
func (m *Manager) iterateWords(offset, size uint64, fn func(index int, mask uint64) bool) {
	limit := m.SizeBytes()
	if size == 0 || offset >= limit {
		return
	}
	end := buf.EndClamped(offset, size, limit)
	page := offset / PageSize
	endPage := buf.DivCeil(end, PageSize)
	for page < endPage {
		index := page / PagesPerWord
		wordPage := index * PagesPerWord
		stop := min(endPage, wordPage+PagesPerWord)
		if fn(int(index), pagebits.Mask(uint(page-wordPage), uint(stop-wordPage))) {
			return
		}
		page = stop
	}
}

// notifier returns a collector reporting runs to the device tracker with
// delta +1 when track is set and -1 otherwise.
func (m *Manager) notifier(track bool) runCollector {
	delta := -1
	if track {
		delta = 1
	}
	return runCollector{emit: func(begin, end uint64) {
		if m.device == nil {
			return
		}
		m.device.UpdatePagesCachedCount(m.base+begin*PageSize, (end-begin)*PageSize, delta)
	}}
}

// changedBits returns the pages of mask whose untracked bit flips when they
// become tracked (track) or untracked (!track).
func changedBits(untrackedWord, mask uint64, track bool) uint64 {
	if track {
		return untrackedWord & mask
	}
	return ^untrackedWord & mask
}
