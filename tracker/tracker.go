package tracker

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/joshuapare/gpucoherency/internal/pagebits"
	"github.com/joshuapare/gpucoherency/tracker/pool"
	"github.com/joshuapare/gpucoherency/tracker/region"
)

// Tracker presents a flat guest address space and dispatches every call to
// the region managers of the windows it touches.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	device DeviceTracker
	opts   Options
	log    *slog.Logger

	windowBits uint
	windowSize uint64

	topTier  []pool.Handle       // one slot per window, NoHandle = never touched
	managers *pool.Pool          // arena backing topTier
	cached   map[uint32]struct{} // windows holding pending CPU writes
}

// New creates a tracker reporting page-count changes to device.
// A nil opts uses DefaultOptions.
func New(device DeviceTracker, opts *Options) (*Tracker, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	numWords := 1 << (o.WindowBits - pagebits.WordBits)
	t := &Tracker{
		device:     device,
		opts:       o,
		log:        o.Logger,
		windowBits: o.WindowBits,
		windowSize: uint64(1) << o.WindowBits,
		topTier:    make([]pool.Handle, 1<<(o.AddressBits-o.WindowBits)),
		managers:   pool.New(device, numWords, o.PoolBlockSize),
		cached:     make(map[uint32]struct{}),
	}
	t.managers.OnGrow = func(capacity int) {
		t.log.Debug("coherency pool grown", "capacity", capacity)
	}
	return t, nil
}

// Options returns the effective options.
func (t *Tracker) Options() Options { return t.opts }

// WindowSize returns the number of bytes covered by one window.
func (t *Tracker) WindowSize() uint64 { return t.windowSize }

// ModifiedCPURegion returns the smallest range [begin, end) covering every CPU
// modified page inside [addr, addr+size), or (0, 0) when there is none.
func (t *Tracker) ModifiedCPURegion(addr, size uint64) (begin, end uint64) {
	return t.iteratePairs(t.opts.MaterializeOnQuery, addr, size, func(m *region.Manager, offset, n uint64) (uint64, uint64) {
		return m.ModifiedRegion(region.StateCPU, offset, n)
	})
}

// ModifiedGPURegion returns the smallest range [begin, end) covering every GPU
// modified page inside [addr, addr+size), or (0, 0) when there is none.
func (t *Tracker) ModifiedGPURegion(addr, size uint64) (begin, end uint64) {
	return t.iteratePairs(false, addr, size, func(m *region.Manager, offset, n uint64) (uint64, uint64) {
		return m.ModifiedRegion(region.StateGPU, offset, n)
	})
}

// IsRegionCPUModified reports whether any page in [addr, addr+size) is CPU modified.
func (t *Tracker) IsRegionCPUModified(addr, size uint64) bool {
	return t.iteratePages(t.opts.MaterializeOnQuery, addr, size, func(m *region.Manager, offset, n uint64) bool {
		return m.IsRegionModified(region.StateCPU, offset, n)
	})
}

// IsRegionGPUModified reports whether any page in [addr, addr+size) is GPU modified.
func (t *Tracker) IsRegionGPUModified(addr, size uint64) bool {
	return t.iteratePages(false, addr, size, func(m *region.Manager, offset, n uint64) bool {
		return m.IsRegionModified(region.StateGPU, offset, n)
	})
}

// IsRegionPreflushable reports whether any page in [addr, addr+size) is marked preflushable.
func (t *Tracker) IsRegionPreflushable(addr, size uint64) bool {
	return t.iteratePages(false, addr, size, func(m *region.Manager, offset, n uint64) bool {
		return m.IsRegionModified(region.StatePreflush, offset, n)
	})
}

// MarkRegionAsCPUModified marks [addr, addr+size) as CPU modified, notifying the device tracker.
func (t *Tracker) MarkRegionAsCPUModified(addr, size uint64) {
	t.changeState(region.StateCPU, true, addr, size)
}

// UnmarkRegionAsCPUModified marks [addr, addr+size) as CPU clean, notifying the device tracker.
func (t *Tracker) UnmarkRegionAsCPUModified(addr, size uint64) {
	t.changeState(region.StateCPU, false, addr, size)
}

// MarkRegionAsGPUModified marks [addr, addr+size) as modified by the GPU.
func (t *Tracker) MarkRegionAsGPUModified(addr, size uint64) {
	t.changeState(region.StateGPU, true, addr, size)
}

// UnmarkRegionAsGPUModified clears GPU modified state of [addr, addr+size).
func (t *Tracker) UnmarkRegionAsGPUModified(addr, size uint64) {
	t.changeState(region.StateGPU, false, addr, size)
}

// MarkRegionAsPreflushable marks [addr, addr+size) for proactive flushing.
func (t *Tracker) MarkRegionAsPreflushable(addr, size uint64) {
	t.changeState(region.StatePreflush, true, addr, size)
}

// UnmarkRegionAsPreflushable clears the preflushable mark of [addr, addr+size).
func (t *Tracker) UnmarkRegionAsPreflushable(addr, size uint64) {
	t.changeState(region.StatePreflush, false, addr, size)
}

// CachedCPUWrite records a CPU write to [addr, addr+size) without marking it
// CPU modified until FlushCachedWrites is called.
func (t *Tracker) CachedCPUWrite(addr, size uint64) {
	t.iteratePages(true, addr, size, func(m *region.Manager, offset, n uint64) bool {
		base := m.CPUAddress()
		m.ChangeRegionState(region.StatePending, true, base+offset, n)
		t.cached[uint32(base>>t.windowBits)] = struct{}{}
		return false
	})
}

// FlushCachedWritesRange commits the cached writes of every window touched by
// [addr, addr+size). Whole windows are flushed, not just the range.
func (t *Tracker) FlushCachedWritesRange(addr, size uint64) {
	t.iteratePages(false, addr, size, func(m *region.Manager, _, _ uint64) bool {
		m.FlushCachedWrites()
		delete(t.cached, uint32(m.CPUAddress()>>t.windowBits))
		return false
	})
}

// FlushCachedWrites commits every cached write, visiting only the windows
// that recorded one.
func (t *Tracker) FlushCachedWrites() {
	for _, id := range slices.Sorted(maps.Keys(t.cached)) {
		if h := t.topTier[id]; h != pool.NoHandle {
			t.managers.Manager(h).FlushCachedWrites()
		}
	}
	clear(t.cached)
}

// ForEachUploadRange calls fn for each maximal CPU modified run inside
// [addr, addr+size) and marks the whole range CPU clean.
func (t *Tracker) ForEachUploadRange(addr, size uint64, fn func(addr, size uint64)) {
	t.forEachRange(region.StateCPU, true, true, addr, size, fn)
}

// ForEachDownloadRange calls fn for each maximal GPU modified run inside
// [addr, addr+size), clearing GPU modified state when clear is set.
func (t *Tracker) ForEachDownloadRange(addr, size uint64, clear bool, fn func(addr, size uint64)) {
	t.forEachRange(region.StateGPU, clear, false, addr, size, fn)
}

// ForEachDownloadRangeAndClear is ForEachDownloadRange with clear set.
func (t *Tracker) ForEachDownloadRangeAndClear(addr, size uint64, fn func(addr, size uint64)) {
	t.ForEachDownloadRange(addr, size, true, fn)
}

// Reset marks every window CPU modified, reporting the change to the device
// tracker, and returns all managers to the pool. Used when the guest memory
// layout changes wholesale.
func (t *Tracker) Reset() {
	released := 0
	for i, h := range t.topTier {
		if h == pool.NoHandle {
			continue
		}
		m := t.managers.Manager(h)
		m.ChangeRegionState(region.StateCPU, true, m.CPUAddress(), m.SizeBytes())
		t.managers.Release(h)
		t.topTier[i] = pool.NoHandle
		released++
	}
	clear(t.cached)
	t.log.Debug("coherency tracker reset", "released", released)
}

// forEachRange enumerates runs window by window and joins runs that continue
// across a window boundary before handing them to fn.
func (t *Tracker) forEachRange(state region.State, clear, create bool, addr, size uint64, fn func(addr, size uint64)) {
	var (
		open       bool
		begin, end uint64
	)
	join := func(a, n uint64) {
		if open && end == a {
			end += n
			return
		}
		if open {
			fn(begin, end-begin)
		}
		open, begin, end = true, a, a+n
	}
	t.iteratePages(create, addr, size, func(m *region.Manager, offset, n uint64) bool {
		m.ForEachModifiedRange(state, clear, m.CPUAddress()+offset, n, join)
		return false
	})
	if open {
		fn(begin, end-begin)
	}
}

func (t *Tracker) changeState(state region.State, set bool, addr, size uint64) {
	t.iteratePages(true, addr, size, func(m *region.Manager, offset, n uint64) bool {
		m.ChangeRegionState(state, set, m.CPUAddress()+offset, n)
		return false
	})
}

// iteratePages splits [addr, addr+size) at window boundaries and calls fn with
// each window's manager and the window-relative sub-range. Windows without a
// manager are created when create is set and skipped otherwise. Iteration
// stops early when fn returns true; the result reports whether it did.
func (t *Tracker) iteratePages(create bool, addr, size uint64, fn func(m *region.Manager, offset, n uint64) bool) bool {
	remaining := size
	index := addr >> t.windowBits
	offset := addr & (t.windowSize - 1)
	for remaining > 0 && index < uint64(len(t.topTier)) {
		amount := min(t.windowSize-offset, remaining)
		if m := t.window(index, create); m != nil && fn(m, offset, amount) {
			return true
		}
		index++
		offset = 0
		remaining -= amount
	}
	return false
}

// iteratePairs is iteratePages for range queries: it converts each window's
// relative (begin, end) to absolute addresses and returns their union, or
// (0, 0) when no window reported anything.
func (t *Tracker) iteratePairs(create bool, addr, size uint64, fn func(m *region.Manager, offset, n uint64) (uint64, uint64)) (uint64, uint64) {
	begin, end := ^uint64(0), uint64(0)
	t.iteratePages(create, addr, size, func(m *region.Manager, offset, n uint64) bool {
		b, e := fn(m, offset, n)
		if b != 0 || e != 0 {
			base := m.CPUAddress()
			begin = min(begin, base+b)
			end = max(end, base+e)
		}
		return false
	})
	if begin >= end {
		return 0, 0
	}
	return begin, end
}

// window returns the manager of window index, creating it if requested.
func (t *Tracker) window(index uint64, create bool) *region.Manager {
	h := t.topTier[index]
	if h == pool.NoHandle {
		if !create {
			return nil
		}
		h = t.createRegion(index)
	}
	return t.managers.Manager(h)
}

func (t *Tracker) createRegion(index uint64) pool.Handle {
	base := index << t.windowBits
	h := t.managers.Get(base)
	t.topTier[index] = h
	t.log.Debug("coherency window created",
		"index", index,
		"base", fmt.Sprintf("%#x", base),
		"handle", h)
	return h
}
