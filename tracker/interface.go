package tracker

import "github.com/joshuapare/gpucoherency/tracker/region"

// DeviceTracker is a type alias for the canonical interface defined in tracker/region.
type DeviceTracker = region.DeviceTracker
