// Package pool provides an arena of region managers addressed by index.
//
// Managers are allocated in fixed-size blocks and never freed; released
// managers are reset and kept on a free list for reuse at another base
// address. Handles stay valid for the lifetime of the pool, so the tracker's
// top-level table can store small integers instead of pointers.
package pool

import (
	"fmt"
	"math"

	"github.com/joshuapare/gpucoherency/tracker/region"
)

// Handle identifies a manager in the pool. The zero Handle means "no manager".
type Handle uint32

// NoHandle is the absent handle.
const NoHandle Handle = 0

// DefaultBlockSize is the number of managers allocated per growth step.
const DefaultBlockSize = 32

// Pool is an arena of region managers.
//
// NOT thread-safe.
type Pool struct {
	blockSize int
	device    region.DeviceTracker
	numWords  int

	blocks [][]region.Manager
	free   []Handle

	// OnGrow, if set, is called after the arena grows with the new capacity.
	OnGrow func(capacity int)
}

// New creates an empty pool whose managers cover numWords words each and
// report to device.
func New(device region.DeviceTracker, numWords, blockSize int) *Pool {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Pool{
		blockSize: blockSize,
		device:    device,
		numWords:  numWords,
	}
}

// Get returns a manager rebased to base, growing the arena if no released
// manager is available. The manager is in its default state.
func (p *Pool) Get(base uint64) Handle {
	if len(p.free) == 0 {
		p.grow()
	}
	h := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.Manager(h).SetCPUAddress(base)
	return h
}

// Manager returns the manager for h. h must have been returned by Get.
func (p *Pool) Manager(h Handle) *region.Manager {
	if h == NoHandle || int(h) > p.Capacity() {
		panic(fmt.Sprintf("pool: invalid handle %d", h))
	}
	i := int(h) - 1
	return &p.blocks[i/p.blockSize][i%p.blockSize]
}

// Release resets the manager for h and makes it available to Get.
func (p *Pool) Release(h Handle) {
	m := p.Manager(h)
	m.Reset()
	m.SetCPUAddress(0)
	p.free = append(p.free, h)
}

// Capacity returns the number of managers ever allocated.
func (p *Pool) Capacity() int { return len(p.blocks) * p.blockSize }

// Free returns the number of managers available without growing.
func (p *Pool) Free() int { return len(p.free) }

// grow allocates one more block. It panics once handles no longer fit in
// 32 bits.
func (p *Pool) grow() {
	first := p.Capacity() + 1
	if uint64(first)+uint64(p.blockSize) > math.MaxUint32 {
		panic("pool: handle space exhausted")
	}
	block := make([]region.Manager, p.blockSize)
	for i := range block {
		block[i].Init(p.device, p.numWords)
	}
	p.blocks = append(p.blocks, block)

	// Push in reverse so Get hands out ascending handles.
	for i := p.blockSize - 1; i >= 0; i-- {
		p.free = append(p.free, Handle(first+i))
	}
	if p.OnGrow != nil {
		p.OnGrow(p.Capacity())
	}
}
