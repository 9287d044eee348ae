// Package tracker tracks GPU buffer memory coherency for emulated guest memory.
//
// # Overview
//
// For every page of guest memory that backs a GPU buffer, the tracker records
// which side holds the authoritative copy:
//
//   - CPU modified: the CPU wrote the page; upload before the GPU uses it.
//   - GPU modified: the GPU wrote the page; download before the CPU reads it.
//   - Cached CPU write: a CPU write recorded but not yet committed, so many
//     small writes can be batched into one device notification.
//   - Preflushable: the page should be flushed proactively.
//
// The tracker does not copy memory and does not decide when to synchronize;
// it only answers which bytes are dirty and from which side.
//
// # Layout
//
// The address space is split into fixed windows (4 MiB by default). Each
// window is a region.Manager holding one page bitmap per state, drawn lazily
// from a pool the first time a mutating call touches the window. Queries over
// windows that were never touched report nothing, unless
// Options.MaterializeOnQuery is set.
//
// # Usage
//
//	counter := devicetrack.NewCounter(nil)
//	t, err := tracker.New(counter, nil)
//	if err != nil {
//	    return err
//	}
//
//	// After uploading a buffer, its pages are clean on the CPU side.
//	t.UnmarkRegionAsCPUModified(addr, size)
//
//	// A guest write arrives.
//	t.MarkRegionAsCPUModified(addr+0x100, 4)
//
//	// Before the next draw, upload what the CPU changed.
//	t.ForEachUploadRange(addr, size, func(a, n uint64) {
//	    upload(a, n)
//	})
//
// # Device Tracker
//
// Every page that is not CPU modified is handed to the DeviceTracker, which
// typically write-protects it so the next guest write can be intercepted.
// Deltas are reported per contiguous run: +1 when pages become clean, -1 when
// they become CPU modified again.
//
// # Thread Safety
//
// Tracker instances are not thread-safe. The owning buffer cache serializes
// access, because each mutation has to be atomic together with the upload or
// download the caller performs afterwards.
package tracker
