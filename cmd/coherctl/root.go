package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/gpucoherency/cmd/coherctl/logger"
	"github.com/joshuapare/gpucoherency/devicetrack"
	"github.com/joshuapare/gpucoherency/trace"
	"github.com/joshuapare/gpucoherency/tracker"
)

var (
	// Global flags
	verbose     bool
	quiet       bool
	jsonOut     bool
	logDir      string
	logEnabled  bool
	windowBits  uint
	addressBits uint
	materialize bool

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "coherctl",
	Short: "Replay and inspect GPU buffer coherency traces",
	Long: `coherctl drives the page-granular coherency tracker with operation
traces, printing query results, occupancy statistics and the address geometry
a given configuration produces.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		var err error
		closeLog, err = logger.Init(logger.Options{
			Enabled: logEnabled || logDir != "",
			LogDir:  logDir,
			Level:   level,
		})
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	flags.BoolVar(&jsonOut, "json", false, "Output in JSON format")
	flags.BoolVar(&logEnabled, "log", false, "Write JSON logs to ~/.coherctl/logs")
	flags.StringVar(&logDir, "log-dir", "", "Write JSON logs to this directory")
	flags.UintVar(&windowBits, "window-bits", tracker.DefaultWindowBits, "log2 of the bytes covered by one window")
	flags.UintVar(&addressBits, "address-bits", tracker.DefaultAddressBits, "log2 of the tracked address space")
	flags.BoolVar(&materialize, "materialize", false, "Let queries allocate windows (untouched memory reads as CPU modified)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// options builds tracker options from the global flags.
func options() tracker.Options {
	opts := tracker.DefaultOptions()
	opts.WindowBits = windowBits
	opts.AddressBits = addressBits
	opts.MaterializeOnQuery = materialize
	opts.Logger = logger.L
	return opts
}

// newTracker creates a tracker reporting to a fresh page counter.
func newTracker() (*tracker.Tracker, *devicetrack.Counter, error) {
	opts := options()
	counter := devicetrack.NewCounter(nil)
	tr, err := tracker.New(counter, &opts)
	if err != nil {
		return nil, nil, err
	}
	return tr, counter, nil
}

// loadTrace parses the trace at path, or stdin when path is "-".
func loadTrace(path string) ([]trace.Op, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace: %w", err)
		}
		defer f.Close()
		r = f
	}
	ops, err := trace.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.L.Debug("trace loaded", "path", path, "ops", len(ops))
	return ops, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
