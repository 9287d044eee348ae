package trace

import "github.com/joshuapare/gpucoherency/tracker"

// Replay applies ops to tr in order. fn, if not nil, receives the result of
// every query operation (see Kind.Query).
func Replay(tr *tracker.Tracker, ops []Op, fn func(Result)) {
	emit := func(r Result) {
		if fn != nil {
			fn(r)
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case MarkCPU:
			tr.MarkRegionAsCPUModified(op.Addr, op.Size)
		case UnmarkCPU:
			tr.UnmarkRegionAsCPUModified(op.Addr, op.Size)
		case MarkGPU:
			tr.MarkRegionAsGPUModified(op.Addr, op.Size)
		case UnmarkGPU:
			tr.UnmarkRegionAsGPUModified(op.Addr, op.Size)
		case MarkPreflush:
			tr.MarkRegionAsPreflushable(op.Addr, op.Size)
		case UnmarkPreflush:
			tr.UnmarkRegionAsPreflushable(op.Addr, op.Size)
		case CachedWrite:
			tr.CachedCPUWrite(op.Addr, op.Size)
		case Flush:
			if op.HasRange {
				tr.FlushCachedWritesRange(op.Addr, op.Size)
			} else {
				tr.FlushCachedWrites()
			}
		case Reset:
			tr.Reset()

		case Upload:
			r := Result{Op: op}
			tr.ForEachUploadRange(op.Addr, op.Size, r.collect)
			emit(r)
		case Download:
			r := Result{Op: op}
			tr.ForEachDownloadRange(op.Addr, op.Size, op.Clear, r.collect)
			emit(r)

		case IsCPU:
			emit(Result{Op: op, Modified: tr.IsRegionCPUModified(op.Addr, op.Size)})
		case IsGPU:
			emit(Result{Op: op, Modified: tr.IsRegionGPUModified(op.Addr, op.Size)})
		case IsPreflush:
			emit(Result{Op: op, Modified: tr.IsRegionPreflushable(op.Addr, op.Size)})
		case ModifiedCPU:
			r := Result{Op: op}
			r.Begin, r.End = tr.ModifiedCPURegion(op.Addr, op.Size)
			emit(r)
		case ModifiedGPU:
			r := Result{Op: op}
			r.Begin, r.End = tr.ModifiedGPURegion(op.Addr, op.Size)
			emit(r)
		}
	}
}

func (r *Result) collect(addr, size uint64) {
	r.Ranges = append(r.Ranges, Range{Addr: addr, Size: size})
}
