package region

// DeviceTracker receives page-count deltas whenever pages enter or leave the
// set the device is tracking for CPU writes.
//
// A page is tracked while it is not CPU dirty: clearing CPU-dirty state
// reports delta = +1 per page, setting it reports delta = -1 per page.
// Calls are aggregated per contiguous run of pages and made synchronously
// from inside the mutating operation; implementations must not call back
// into the tracker.
type DeviceTracker interface {
	UpdatePagesCachedCount(addr, size uint64, delta int)
}
