// Package trace reads and replays line-oriented coherency operation traces.
//
// A trace holds one operation per line:
//
//	# upload a buffer, then let the GPU write to part of it
//	upload       0x4000000 0x10000
//	mark-gpu     0x4002000 0x1000
//	download     0x4000000 0x10000 clear
//
// Numbers accept Go integer literal syntax (0x, 0o, 0b prefixes and
// underscores). Everything after '#' is a comment. Input may be UTF-8 or
// UTF-16 with a byte order mark.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("syntax error")

const (
	commentPrefix = "#"
	clearKeyword  = "clear"

	scannerInitialBufferSize = 4 * 1024
	scannerMaxLineSize       = 1024 * 1024
)

// Parse reads a trace. Errors carry the 1-based line number.
func Parse(r io.Reader) ([]Op, error) {
	// Decode UTF-16 if a BOM says so, pass UTF-8 through.
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(r, decoder))
	scanner.Buffer(make([]byte, 0, scannerInitialBufferSize), scannerMaxLineSize)

	var ops []Op
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.Index(text, commentPrefix); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		op, err := parseOp(fields)
		if err != nil {
			return nil, fmt.Errorf("trace: line %d: %w", line, err)
		}
		op.Line = line
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: reading line %d: %w", line+1, err)
	}
	return ops, nil
}

// ParseString is Parse over a string.
func ParseString(s string) ([]Op, error) {
	return Parse(strings.NewReader(s))
}

func parseOp(fields []string) (Op, error) {
	kind, ok := kindsByName[fields[0]]
	if !ok {
		return Op{}, fmt.Errorf("%w: unknown operation %q", ErrSyntax, fields[0])
	}
	op := Op{Kind: kind}
	args := fields[1:]

	switch kind {
	case Reset:
		if len(args) != 0 {
			return Op{}, arityError(kind, "no arguments", len(args))
		}
		return op, nil
	case Flush:
		if len(args) == 0 {
			return op, nil
		}
		op.HasRange = true
	case Download:
		if len(args) == 3 {
			if args[2] != clearKeyword {
				return Op{}, fmt.Errorf("%w: download: expected %q, got %q", ErrSyntax, clearKeyword, args[2])
			}
			op.Clear = true
			args = args[:2]
		}
	}
	if len(args) != 2 {
		return Op{}, arityError(kind, "<addr> <size>", len(args))
	}

	var err error
	if op.Addr, err = parseNumber(args[0]); err != nil {
		return Op{}, fmt.Errorf("%s address: %w", kind, err)
	}
	if op.Size, err = parseNumber(args[1]); err != nil {
		return Op{}, fmt.Errorf("%s size: %w", kind, err)
	}
	return op, nil
}

func parseNumber(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid number %q", ErrSyntax, s)
	}
	return v, nil
}

func arityError(kind Kind, want string, got int) error {
	return fmt.Errorf("%w: %s takes %s, got %d arguments", ErrSyntax, kind, want, got)
}
