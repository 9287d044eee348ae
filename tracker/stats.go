package tracker

import (
	"errors"
	"fmt"

	"github.com/joshuapare/gpucoherency/tracker/pool"
	"github.com/joshuapare/gpucoherency/tracker/region"
)

// Stats summarizes tracker occupancy.
type Stats struct {
	Windows        int `json:"windows"`         // windows with a manager
	PendingWindows int `json:"pending_windows"` // windows holding cached writes
	PoolCapacity   int `json:"pool_capacity"`   // managers ever allocated
	PoolFree       int `json:"pool_free"`       // managers available for reuse

	CPUModifiedPages  int `json:"cpu_modified_pages"`
	GPUModifiedPages  int `json:"gpu_modified_pages"`
	CachedWritePages  int `json:"cached_write_pages"`
	PreflushablePages int `json:"preflushable_pages"`
}

// Stats walks the window table and returns occupancy counters.
// It is O(number of windows) and intended for diagnostics, not hot paths.
func (t *Tracker) Stats() Stats {
	s := Stats{
		PoolCapacity: t.managers.Capacity(),
		PoolFree:     t.managers.Free(),
	}
	for _, h := range t.topTier {
		if h == pool.NoHandle {
			continue
		}
		m := t.managers.Manager(h)
		s.Windows++
		if m.HasCachedWrites() {
			s.PendingWindows++
		}
		s.CPUModifiedPages += m.Count(region.StateCPU)
		s.GPUModifiedPages += m.Count(region.StateGPU)
		s.CachedWritePages += m.Count(region.StatePending)
		s.PreflushablePages += m.Count(region.StatePreflush)
	}
	return s
}

// DebugPages returns the address of every page with state set, in ascending
// order. Intended for diagnostics; the result holds one entry per page.
func (t *Tracker) DebugPages(state region.State) []uint64 {
	var pages []uint64
	for _, h := range t.topTier {
		if h != pool.NoHandle {
			pages = append(pages, t.managers.Manager(h).DebugPages(state)...)
		}
	}
	return pages
}

// Verify recomputes the page counts of every window and checks that every
// window holding cached writes will be visited by FlushCachedWrites. It
// returns an error wrapping ErrInconsistent describing each problem found.
func (t *Tracker) Verify() error {
	var errs []error
	for i, h := range t.topTier {
		if h == pool.NoHandle {
			continue
		}
		m := t.managers.Manager(h)
		if !m.VerifyCounts() {
			errs = append(errs, fmt.Errorf("window %d (%#x): page counts out of sync", i, m.CPUAddress()))
		}
		if _, ok := t.cached[uint32(i)]; m.HasCachedWrites() && !ok {
			errs = append(errs, fmt.Errorf("window %d (%#x): cached writes not recorded", i, m.CPUAddress()))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInconsistent, errors.Join(errs...))
	}
	return nil
}
