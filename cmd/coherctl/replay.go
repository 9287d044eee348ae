package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/gpucoherency/trace"
)

func init() {
	rootCmd.AddCommand(newReplayCmd())
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay a trace and print every query result",
		Long: `The replay command applies every operation of a trace to a fresh tracker
and prints the outcome of each query, upload and download in order.
Use "-" to read the trace from stdin.

Example:
  coherctl replay upload.trace
  coherctl replay upload.trace --json
  coherctl replay - --window-bits 20 < upload.trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
}

func runReplay(args []string) error {
	ops, err := loadTrace(args[0])
	if err != nil {
		return err
	}
	tr, counter, err := newTracker()
	if err != nil {
		return err
	}
	printVerbose("Replaying %d operations\n", len(ops))

	results := make([]trace.Result, 0, len(ops))
	trace.Replay(tr, ops, func(r trace.Result) {
		results = append(results, r)
		if !jsonOut {
			printInfo("%d: %s\n", r.Op.Line, r)
		}
	})
	if err := counter.Err(); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(results)
	}
	return nil
}
