package tracker

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joshuapare/gpucoherency/internal/pagebits"
	"github.com/joshuapare/gpucoherency/tracker/pool"
)

const (
	// DefaultWindowBits gives 4 MiB windows of 16 words.
	DefaultWindowBits = 22

	// DefaultAddressBits covers a 16 GiB guest address space.
	DefaultAddressBits = 34

	// MinWindowBits is one word per window.
	MinWindowBits = pagebits.WordBits

	// MaxWindowBits is 64 words per window.
	MaxWindowBits = pagebits.WordBits + 6

	// MaxAddressBits is the widest supported guest address space.
	MaxAddressBits = 48

	// MaxTableBits bounds the top-level window table to 1M entries.
	MaxTableBits = 20
)

// Runtime debug flag for window logging - controlled by COHERENCY_LOG_REGIONS env var.
var logRegions = os.Getenv("COHERENCY_LOG_REGIONS") != ""

// Options controls tracker geometry and behavior.
// Zero fields take their defaults.
type Options struct {
	// WindowBits is log2 of the bytes covered by one region manager.
	// Default: 22 (4 MiB).
	WindowBits uint

	// AddressBits is log2 of the tracked guest address space. Addresses at
	// or beyond 1<<AddressBits are ignored.
	// Default: 34 (16 GiB).
	AddressBits uint

	// PoolBlockSize is the number of managers allocated whenever the pool
	// runs dry. Default: 32.
	PoolBlockSize int

	// MaterializeOnQuery makes read-only queries allocate windows they touch,
	// like mutations do. A materialized window starts fully CPU modified, so
	// CPU queries over untouched memory then report it as modified.
	// Default: false (untouched memory is reported as clean).
	MaterializeOnQuery bool

	// Logger receives debug logs about window creation and pool growth.
	// If nil, logs are discarded unless COHERENCY_LOG_REGIONS is set.
	Logger *slog.Logger
}

// DefaultOptions returns the default tracker options.
func DefaultOptions() Options {
	return Options{
		WindowBits:    DefaultWindowBits,
		AddressBits:   DefaultAddressBits,
		PoolBlockSize: pool.DefaultBlockSize,
	}
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WindowBits == 0 {
		o.WindowBits = def.WindowBits
	}
	if o.AddressBits == 0 {
		o.AddressBits = def.AddressBits
	}
	if o.PoolBlockSize <= 0 {
		o.PoolBlockSize = def.PoolBlockSize
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	return o
}

// Validate checks the geometry.
func (o Options) Validate() error {
	if o.WindowBits < MinWindowBits || o.WindowBits > MaxWindowBits {
		return fmt.Errorf("%w: window bits %d not in [%d, %d]",
			ErrBadGeometry, o.WindowBits, MinWindowBits, MaxWindowBits)
	}
	if o.AddressBits < o.WindowBits || o.AddressBits > MaxAddressBits {
		return fmt.Errorf("%w: address bits %d not in [%d, %d]",
			ErrBadGeometry, o.AddressBits, o.WindowBits, MaxAddressBits)
	}
	if o.AddressBits-o.WindowBits > MaxTableBits {
		return fmt.Errorf("%w: %d windows exceed table limit of %d",
			ErrBadGeometry, uint64(1)<<(o.AddressBits-o.WindowBits), 1<<MaxTableBits)
	}
	return nil
}

func defaultLogger() *slog.Logger {
	if logRegions {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
