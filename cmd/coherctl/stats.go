package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/gpucoherency/trace"
	"github.com/joshuapare/gpucoherency/tracker"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <trace>",
		Short: "Replay a trace and show tracker occupancy",
		Long: `The stats command replays a trace without printing query results, checks
the tracker's bookkeeping and then shows how many windows were allocated, how
many pages are in each state and how many pages the device tracker is counting.

Example:
  coherctl stats upload.trace
  coherctl stats upload.trace --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args)
		},
	}
}

// ReplayStats is the occupancy after a replay.
type ReplayStats struct {
	Operations   int           `json:"operations"`
	Queries      int           `json:"queries"`
	Tracker      tracker.Stats `json:"tracker"`
	TrackedPages int           `json:"tracked_pages"` // pages with a non-zero device count
	DeviceCount  int           `json:"device_count"`  // sum of device counts
}

func runStats(args []string) error {
	ops, err := loadTrace(args[0])
	if err != nil {
		return err
	}
	tr, counter, err := newTracker()
	if err != nil {
		return err
	}

	stats := ReplayStats{Operations: len(ops)}
	trace.Replay(tr, ops, func(trace.Result) { stats.Queries++ })
	if err := counter.Err(); err != nil {
		return err
	}
	if err := tr.Verify(); err != nil {
		return err
	}
	stats.Tracker = tr.Stats()
	stats.TrackedPages = counter.Pages()
	stats.DeviceCount = counter.Total()

	if jsonOut {
		return printJSON(stats)
	}
	p := newPrinter()
	p.row("Operations", stats.Operations)
	p.row("Queries", stats.Queries)
	p.row("Windows", stats.Tracker.Windows)
	p.row("Windows with cached writes", stats.Tracker.PendingWindows)
	p.row("Pool capacity", stats.Tracker.PoolCapacity)
	p.row("Pool free", stats.Tracker.PoolFree)
	p.row("CPU modified pages", stats.Tracker.CPUModifiedPages)
	p.row("GPU modified pages", stats.Tracker.GPUModifiedPages)
	p.row("Cached write pages", stats.Tracker.CachedWritePages)
	p.row("Preflushable pages", stats.Tracker.PreflushablePages)
	p.row("Device tracked pages", stats.TrackedPages)
	p.row("Device count", stats.DeviceCount)
	return p.flush()
}
