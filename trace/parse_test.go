package trace

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllOperations(t *testing.T) {
	ops, err := ParseString(`
# setup
mark-cpu 0x4000000 4096
unmark-cpu 0x4000000 0x1_000   # trailing comment
mark-gpu 1 2
unmark-gpu 1 2
mark-preflush 0o10 0b11
unmark-preflush 1 2
cached-write 1 2
flush
flush 0x10 0x20
upload 1 2
download 1 2
download 1 2 clear
is-cpu 1 2
is-gpu 1 2
is-preflush 1 2
modified-cpu 1 2
modified-gpu 1 2
reset
`)
	require.NoError(t, err)
	require.Len(t, ops, int(numKinds)+2)

	assert.Equal(t, Op{Kind: MarkCPU, Addr: 0x4000000, Size: 4096, Line: 3}, ops[0])
	assert.Equal(t, Op{Kind: UnmarkCPU, Addr: 0x4000000, Size: 0x1000, Line: 4}, ops[1])
	assert.Equal(t, Op{Kind: MarkPreflush, Addr: 8, Size: 3, Line: 7}, ops[4])
	assert.Equal(t, Op{Kind: Flush, Line: 10}, ops[7])
	assert.Equal(t, Op{Kind: Flush, Addr: 0x10, Size: 0x20, HasRange: true, Line: 11}, ops[8])
	assert.False(t, ops[10].Clear)
	assert.True(t, ops[11].Clear)
	assert.Equal(t, Reset, ops[len(ops)-1].Kind)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown op", "mark-cpu 1 1\nfrobnicate 1 2", "line 2"},
		{"missing size", "mark-gpu 0x10", "mark-gpu takes <addr> <size>"},
		{"extra args", "is-cpu 1 2 3", "got 3 arguments"},
		{"reset args", "reset 1", "reset takes no arguments"},
		{"bad number", "upload 0xZZ 1", `invalid number "0xZZ"`},
		{"negative", "upload 1 -1", `invalid number "-1"`},
		{"overflow", "upload 0x1_0000_0000_0000_0000 1", "invalid number"},
		{"bad clear", "download 1 2 now", `expected "clear"`},
		{"flush one arg", "flush 1", "flush takes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			require.ErrorIs(t, err, ErrSyntax)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	ops, err := ParseString("\n   \n# nothing here\n")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestParse_UTF16WithBOM(t *testing.T) {
	text := "is-cpu 0x1000 0x2000\r\n"
	var b bytes.Buffer
	b.Write([]byte{0xff, 0xfe})
	for _, u := range utf16.Encode([]rune(text)) {
		_ = binary.Write(&b, binary.LittleEndian, u)
	}

	ops, err := Parse(&b)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, Op{Kind: IsCPU, Addr: 0x1000, Size: 0x2000, Line: 1}, ops[0])
}

func TestOp_StringRoundTrip(t *testing.T) {
	in := []Op{
		{Kind: MarkCPU, Addr: 0x4000000, Size: 0x1000},
		{Kind: Flush},
		{Kind: Flush, Addr: 0x10, Size: 0x20, HasRange: true},
		{Kind: Download, Addr: 1, Size: 2, Clear: true},
		{Kind: Download, Addr: 1, Size: 2},
		{Kind: Reset},
	}
	for _, op := range in {
		t.Run(op.String(), func(t *testing.T) {
			out, err := ParseString(op.String())
			require.NoError(t, err)
			require.Len(t, out, 1)
			out[0].Line = 0
			assert.Equal(t, op, out[0])
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "cached-write", CachedWrite.String())
	assert.Equal(t, "Kind(200)", Kind(200).String())
	_, err := Kind(200).MarshalText()
	require.Error(t, err)
	for k := Kind(0); k < numKinds; k++ {
		assert.NotEmpty(t, kindNames[k], "kind %d has no name", k)
	}
}
