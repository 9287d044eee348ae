package trace

import (
	"fmt"
	"strings"
)

// Kind identifies a trace operation.
type Kind uint8

const (
	MarkCPU Kind = iota
	UnmarkCPU
	MarkGPU
	UnmarkGPU
	MarkPreflush
	UnmarkPreflush
	CachedWrite
	Flush
	Upload
	Download
	IsCPU
	IsGPU
	IsPreflush
	ModifiedCPU
	ModifiedGPU
	Reset

	numKinds
)

var kindNames = [numKinds]string{
	MarkCPU:        "mark-cpu",
	UnmarkCPU:      "unmark-cpu",
	MarkGPU:        "mark-gpu",
	UnmarkGPU:      "unmark-gpu",
	MarkPreflush:   "mark-preflush",
	UnmarkPreflush: "unmark-preflush",
	CachedWrite:    "cached-write",
	Flush:          "flush",
	Upload:         "upload",
	Download:       "download",
	IsCPU:          "is-cpu",
	IsGPU:          "is-gpu",
	IsPreflush:     "is-preflush",
	ModifiedCPU:    "modified-cpu",
	ModifiedGPU:    "modified-gpu",
	Reset:          "reset",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, numKinds)
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	return m
}()

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MarshalText encodes k by its trace keyword.
func (k Kind) MarshalText() ([]byte, error) {
	if k >= numKinds {
		return nil, fmt.Errorf("trace: unknown kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// Query reports whether replaying k produces a Result.
func (k Kind) Query() bool {
	switch k {
	case Upload, Download, IsCPU, IsGPU, IsPreflush, ModifiedCPU, ModifiedGPU:
		return true
	}
	return false
}

// Op is one parsed trace line.
type Op struct {
	Kind     Kind   `json:"op"`
	Addr     uint64 `json:"addr"`
	Size     uint64 `json:"size"`
	HasRange bool   `json:"-"`               // flush with an explicit range
	Clear    bool   `json:"clear,omitempty"` // download only
	Line     int    `json:"line"`
}

// String formats op in trace syntax. Parse(op.String()) yields op again,
// line number aside.
func (op Op) String() string {
	switch {
	case op.Kind == Reset, op.Kind == Flush && !op.HasRange:
		return op.Kind.String()
	case op.Kind == Download && op.Clear:
		return fmt.Sprintf("%s %#x %#x clear", op.Kind, op.Addr, op.Size)
	default:
		return fmt.Sprintf("%s %#x %#x", op.Kind, op.Addr, op.Size)
	}
}

// Range is a run reported by an upload or download.
type Range struct {
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size"`
}

// Result is the outcome of a query operation.
type Result struct {
	Op Op `json:"op"`

	// is-* queries
	Modified bool `json:"modified,omitempty"`

	// modified-* queries; both zero when nothing is modified
	Begin uint64 `json:"begin,omitempty"`
	End   uint64 `json:"end,omitempty"`

	// upload and download
	Ranges []Range `json:"ranges,omitempty"`
}

// String formats r as "<op>: <outcome>".
func (r Result) String() string {
	var sb strings.Builder
	sb.WriteString(r.Op.String())
	sb.WriteString(": ")
	switch r.Op.Kind {
	case IsCPU, IsGPU, IsPreflush:
		fmt.Fprint(&sb, r.Modified)
	case ModifiedCPU, ModifiedGPU:
		if r.Begin == 0 && r.End == 0 {
			sb.WriteString("none")
		} else {
			fmt.Fprintf(&sb, "[%#x, %#x)", r.Begin, r.End)
		}
	default:
		if len(r.Ranges) == 0 {
			sb.WriteString("none")
		}
		for i, rg := range r.Ranges {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%#x+%#x", rg.Addr, rg.Size)
		}
	}
	return sb.String()
}
