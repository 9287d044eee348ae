package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/gpucoherency/devicetrack"
)

const (
	page     = PageSize
	word     = BytesPerWord
	numWords = 16
	base     = 16 << 22
)

type rng struct{ addr, size uint64 }

func newTestManager(t *testing.T) (*Manager, *devicetrack.Counter) {
	t.Helper()
	counter := devicetrack.NewCounter(nil)
	m := New(counter, numWords)
	m.SetCPUAddress(base)
	return m, counter
}

func collect(m *Manager, state State, clear bool, addr, size uint64) []rng {
	var out []rng
	m.ForEachModifiedRange(state, clear, addr, size, func(a, s uint64) {
		out = append(out, rng{a, s})
	})
	return out
}

func TestManager_DefaultState(t *testing.T) {
	m, counter := newTestManager(t)

	assert.Equal(t, uint64(numWords*word), m.SizeBytes())
	assert.Equal(t, numWords*PagesPerWord, m.Count(StateCPU))
	assert.Zero(t, m.Count(StateGPU))
	assert.Zero(t, m.Count(StatePending))
	assert.Zero(t, m.Count(StatePreflush))
	assert.Zero(t, counter.Total())

	assert.True(t, m.IsRegionModified(StateCPU, 0, page))
	begin, end := m.ModifiedRegion(StateCPU, word, word)
	assert.Equal(t, uint64(word), begin)
	assert.Equal(t, uint64(2*word), end)
}

func TestManager_UnmarkThenMarkOnePage(t *testing.T) {
	m, counter := newTestManager(t)

	m.ChangeRegionState(StateCPU, false, base, word)
	assert.Equal(t, PagesPerWord, counter.Total())
	begin, end := m.ModifiedRegion(StateCPU, 0, word)
	assert.Zero(t, begin)
	assert.Zero(t, end)

	m.ChangeRegionState(StateCPU, true, base+page, 1)
	begin, end = m.ModifiedRegion(StateCPU, 0, word)
	assert.Equal(t, uint64(page), begin)
	assert.Equal(t, uint64(2*page), end)
	assert.Equal(t, PagesPerWord-1, counter.Total())
	require.True(t, m.VerifyCounts())
}

func TestManager_ModifiedRegionPartialWords(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, numWords*word)
	m.ChangeRegionState(StateCPU, true, base+page*6, page)
	m.ChangeRegionState(StateCPU, true, base+page*8, page)

	begin, end := m.ModifiedRegion(StateCPU, 0, word)
	assert.Equal(t, uint64(page*6), begin)
	assert.Equal(t, uint64(page*9), end)

	// Query window excludes page 8.
	begin, end = m.ModifiedRegion(StateCPU, page*3, page*5)
	assert.Equal(t, uint64(page*6), begin)
	assert.Equal(t, uint64(page*7), end)

	// Unaligned query touching only the last byte of page 8.
	begin, end = m.ModifiedRegion(StateCPU, page*9-1, 1)
	assert.Equal(t, uint64(page*8), begin)
	assert.Equal(t, uint64(page*9), end)
}

func TestManager_IsRegionModifiedWrapsWords(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, numWords*word)
	m.ChangeRegionState(StateCPU, true, base+page*63, page*2)

	assert.True(t, m.IsRegionModified(StateCPU, 0, 2*word))
	assert.False(t, m.IsRegionModified(StateCPU, page*62, page))
	assert.True(t, m.IsRegionModified(StateCPU, page*63, page))
	assert.True(t, m.IsRegionModified(StateCPU, page*64, page))
	assert.True(t, m.IsRegionModified(StateCPU, page*60, page*8))
	assert.False(t, m.IsRegionModified(StateCPU, page*65, 8*word))
}

func TestManager_ForEachModifiedRangeCoalescesAcrossWords(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, 2*word)
	m.ChangeRegionState(StateCPU, true, base+word-page, page*2)

	got := collect(m, StateCPU, true, base, 2*word)
	assert.Equal(t, []rng{{base + word - page, 2 * page}}, got)
	assert.False(t, m.IsRegionModified(StateCPU, 0, 2*word))
	require.True(t, m.VerifyCounts())
}

func TestManager_ForEachModifiedRangeSparse(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, word)
	m.ChangeRegionState(StateCPU, true, base+page, page)
	m.ChangeRegionState(StateCPU, true, base+page*3, page*4)

	got := collect(m, StateCPU, false, base, word)
	assert.Equal(t, []rng{{base + page, page}, {base + page*3, page * 4}}, got)

	// Without clear nothing changes.
	assert.Equal(t, got, collect(m, StateCPU, false, base, word))
}

func TestManager_ForEachModifiedRangeClipsBelowBase(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base-word, 2*word)
	m.ChangeRegionState(StateCPU, true, base, page)

	got := collect(m, StateCPU, true, base-page, 2*page)
	assert.Equal(t, []rng{{base, page}}, got)
	assert.Empty(t, collect(m, StateCPU, true, base-word, word))
}

func TestManager_UploadTracksWholeRange(t *testing.T) {
	m, counter := newTestManager(t)

	// Fresh window: everything CPU dirty and untracked.
	got := collect(m, StateCPU, true, base, word)
	assert.Equal(t, []rng{{base, word}}, got)
	assert.Equal(t, PagesPerWord, counter.Total())

	m.ChangeRegionState(StateCPU, true, base, word)
	assert.Zero(t, counter.Total())
}

func TestManager_CachedWritePromotion(t *testing.T) {
	m, counter := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, word)
	require.Equal(t, 64, counter.Total())

	m.ChangeRegionState(StatePending, true, base+page, page)
	assert.Equal(t, 63, counter.Total())
	assert.True(t, m.HasCachedWrites())
	assert.False(t, m.IsRegionModified(StateCPU, page, page))

	m.FlushCachedWrites()
	assert.False(t, m.HasCachedWrites())
	assert.True(t, m.IsRegionModified(StateCPU, page, page))
	assert.Equal(t, 63, counter.Total())

	m.ChangeRegionState(StateCPU, true, base, word)
	assert.Zero(t, counter.Total())
	require.True(t, m.VerifyCounts())
}

func TestManager_MarkCPUDiscardsPending(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, word)
	m.ChangeRegionState(StatePending, true, base, 2*page)
	m.ChangeRegionState(StateCPU, true, base, page)

	assert.Equal(t, []uint64{base + page}, m.DebugPages(StatePending))
}

func TestManager_GPUMaskedByUntracked(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, word)
	m.ChangeRegionState(StatePending, true, base+page, page)
	m.ChangeRegionState(StateGPU, true, base+page, 2*page)

	// Page 1 has a pending CPU write; only page 2 is downloadable.
	assert.Equal(t, []rng{{base + 2*page, page}}, collect(m, StateGPU, false, base, word))
	begin, end := m.ModifiedRegion(StateGPU, 0, word)
	assert.Equal(t, uint64(2*page), begin)
	assert.Equal(t, uint64(3*page), end)
	assert.False(t, m.IsRegionModified(StateGPU, page, page))

	got := collect(m, StateGPU, true, base, word)
	assert.Equal(t, []rng{{base + 2*page, page}}, got)
	// The masked page keeps its GPU bit.
	assert.Equal(t, []uint64{base + page}, m.DebugPages(StateGPU))
}

func TestManager_Preflush(t *testing.T) {
	m, counter := newTestManager(t)
	assert.False(t, m.IsRegionModified(StatePreflush, 0, m.SizeBytes()))

	m.ChangeRegionState(StatePreflush, true, base+word, 3*page)
	assert.True(t, m.IsRegionModified(StatePreflush, word+2*page, 1))
	assert.Zero(t, counter.Total(), "preflush changes are not reported to the device")

	m.ChangeRegionState(StatePreflush, false, base+word, page)
	begin, end := m.ModifiedRegion(StatePreflush, 0, m.SizeBytes())
	assert.Equal(t, uint64(word+page), begin)
	assert.Equal(t, uint64(word+3*page), end)
}

func TestManager_ResetAndRebase(t *testing.T) {
	m, _ := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base, m.SizeBytes())
	m.ChangeRegionState(StateGPU, true, base, word)

	m.Reset()
	m.SetCPUAddress(base * 2)
	assert.Equal(t, uint64(base*2), m.CPUAddress())
	assert.Equal(t, numWords*PagesPerWord, m.Count(StateCPU))
	assert.Zero(t, m.Count(StateGPU))
	assert.Equal(t, []rng{{base * 2, page}}, collect(m, StateCPU, false, base*2, page))
}

func TestManager_OutOfWindowIgnored(t *testing.T) {
	m, counter := newTestManager(t)
	m.ChangeRegionState(StateCPU, false, base+m.SizeBytes(), word)
	assert.Zero(t, counter.Total())
	m.ChangeRegionState(StateCPU, false, base, 0)
	assert.Zero(t, counter.Total())
	assert.False(t, m.IsRegionModified(StateCPU, m.SizeBytes(), page))
}

func TestManager_DeviceRunsAggregated(t *testing.T) {
	rec := &recordingDevice{}
	m := New(rec, numWords)
	m.SetCPUAddress(base)

	m.ChangeRegionState(StateCPU, false, base, 3*word)
	require.Equal(t, []deviceCall{{base, 3 * word, 1}}, rec.calls)

	m.ChangeRegionState(StateCPU, true, base+word-page, 2*page)
	require.Equal(t, deviceCall{base + word - page, 2 * page, -1}, rec.calls[1])
}

type deviceCall struct {
	addr, size uint64
	delta      int
}

type recordingDevice struct{ calls []deviceCall }

func (r *recordingDevice) UpdatePagesCachedCount(addr, size uint64, delta int) {
	r.calls = append(r.calls, deviceCall{addr, size, delta})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "cpu", StateCPU.String())
	assert.Equal(t, "gpu", StateGPU.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "preflush", StatePreflush.String())
	assert.Equal(t, "State(9)", State(9).String())

	for _, s := range States {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseState("untracked")
	require.Error(t, err)
}

func BenchmarkManager_IsRegionModified(b *testing.B) {
	m := New(nil, numWords)
	m.SetCPUAddress(base)
	m.ChangeRegionState(StateCPU, false, base, m.SizeBytes())
	m.ChangeRegionState(StateCPU, true, base+m.SizeBytes()-page, page)
	b.ReportAllocs()
	for b.Loop() {
		m.IsRegionModified(StateCPU, 0, m.SizeBytes())
	}
}

func BenchmarkManager_ForEachModifiedRange(b *testing.B) {
	m := New(nil, numWords)
	m.SetCPUAddress(base)
	b.ReportAllocs()
	for b.Loop() {
		m.ChangeRegionState(StateCPU, true, base+page*3, word*2)
		m.ForEachModifiedRange(StateCPU, true, base, m.SizeBytes(), func(uint64, uint64) {})
	}
}
