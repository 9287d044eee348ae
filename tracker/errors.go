package tracker

import "errors"

var (
	// ErrNilDevice indicates that New was called without a device tracker.
	ErrNilDevice = errors.New("tracker: nil device tracker")

	// ErrBadGeometry indicates window or address widths outside the supported range.
	ErrBadGeometry = errors.New("tracker: unsupported geometry")

	// ErrInconsistent indicates that Verify found bookkeeping out of sync
	// with the page bitmaps.
	ErrInconsistent = errors.New("tracker: inconsistent state")
)
