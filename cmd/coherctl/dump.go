package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/gpucoherency/trace"
	"github.com/joshuapare/gpucoherency/tracker/region"
)

var dumpStates []string

func init() {
	cmd := newDumpCmd()
	cmd.Flags().StringSliceVar(&dumpStates, "state", nil, "States to dump: cpu, gpu, pending, preflush (default all)")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <trace>",
		Short: "Replay a trace and list the pages in each state",
		Long: `The dump command replays a trace without printing query results, checks the
tracker's bookkeeping and lists every page in the selected states as runs of
contiguous pages.

Example:
  coherctl dump upload.trace
  coherctl dump upload.trace --state gpu,pending --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
}

// StateDump lists the pages of one state.
type StateDump struct {
	State string        `json:"state"`
	Pages int           `json:"pages"`
	Runs  []trace.Range `json:"runs"`
}

func selectedStates() ([]region.State, error) {
	if len(dumpStates) == 0 {
		return region.States[:], nil
	}
	states := make([]region.State, 0, len(dumpStates))
	for _, name := range dumpStates {
		s, err := region.ParseState(name)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

func runDump(args []string) error {
	states, err := selectedStates()
	if err != nil {
		return err
	}
	ops, err := loadTrace(args[0])
	if err != nil {
		return err
	}
	tr, counter, err := newTracker()
	if err != nil {
		return err
	}
	trace.Replay(tr, ops, nil)
	if err := counter.Err(); err != nil {
		return err
	}
	if err := tr.Verify(); err != nil {
		return err
	}

	dumps := make([]StateDump, 0, len(states))
	for _, s := range states {
		pages := tr.DebugPages(s)
		dumps = append(dumps, StateDump{State: s.String(), Pages: len(pages), Runs: pageRuns(pages)})
	}
	if jsonOut {
		return printJSON(dumps)
	}
	for _, d := range dumps {
		printInfo("%s: %d pages\n", d.State, d.Pages)
		for _, r := range d.Runs {
			printInfo("  %#x+%#x\n", r.Addr, r.Size)
		}
	}
	return nil
}

// pageRuns joins ascending page addresses into contiguous runs.
func pageRuns(pages []uint64) []trace.Range {
	var runs []trace.Range
	for _, p := range pages {
		if n := len(runs); n > 0 && runs[n-1].Addr+runs[n-1].Size == p {
			runs[n-1].Size += region.PageSize
			continue
		}
		runs = append(runs, trace.Range{Addr: p, Size: region.PageSize})
	}
	if runs == nil {
		runs = []trace.Range{}
	}
	return runs
}

