package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/gpucoherency/tracker"
	"github.com/joshuapare/gpucoherency/tracker/region"
)

func init() {
	rootCmd.AddCommand(newGeometryCmd())
}

func newGeometryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry",
		Short: "Show the address geometry of a tracker configuration",
		Long: `The geometry command validates --window-bits and --address-bits and shows
the sizes they produce, including the memory one window costs.

Example:
  coherctl geometry
  coherctl geometry --window-bits 20 --address-bits 32 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeometry()
		},
	}
}

// Geometry is the derived layout of a tracker configuration.
type Geometry struct {
	PageSize       uint64 `json:"page_size"`
	WordSize       uint64 `json:"word_size"`
	WindowSize     uint64 `json:"window_size"`
	WordsPerWindow uint64 `json:"words_per_window"`
	AddressSpace   uint64 `json:"address_space"`
	Windows        uint64 `json:"windows"`
	WindowBytes    uint64 `json:"window_bytes"` // bitmap storage per window
	TableBytes     uint64 `json:"table_bytes"`  // top-level window table
}

// bitmapsPerWindow counts the state bitmaps plus the untracked bitmap.
const bitmapsPerWindow = 5

func computeGeometry(opts tracker.Options) (Geometry, error) {
	if err := opts.Validate(); err != nil {
		return Geometry{}, err
	}
	words := uint64(1) << (opts.WindowBits - tracker.MinWindowBits)
	windows := uint64(1) << (opts.AddressBits - opts.WindowBits)
	return Geometry{
		PageSize:       region.PageSize,
		WordSize:       region.BytesPerWord,
		WindowSize:     uint64(1) << opts.WindowBits,
		WordsPerWindow: words,
		AddressSpace:   uint64(1) << opts.AddressBits,
		Windows:        windows,
		WindowBytes:    bitmapsPerWindow * words * 8,
		TableBytes:     windows * 4,
	}, nil
}

func runGeometry() error {
	g, err := computeGeometry(options())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(g)
	}
	p := newPrinter()
	p.row("Page size", g.PageSize)
	p.row("Word size", g.WordSize)
	p.row("Window size", g.WindowSize)
	p.row("Words per window", g.WordsPerWindow)
	p.row("Address space", g.AddressSpace)
	p.row("Windows", g.Windows)
	p.row("Bytes per window", g.WindowBytes)
	p.row("Window table bytes", g.TableBytes)
	return p.flush()
}
