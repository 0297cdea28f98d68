package rfmorse

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Allocator hands out zeroed, physically contiguous, uncached memory that the
// DMA controller can reach.
type Allocator interface {
	Alloc(size int) (*DMABuffer, error)
}

// DMABuffer is one allocation from an Allocator.
//
// Software only ever addresses it by offset.  Hardware addresses it by
// BusAddress.  Release must be called exactly once; later calls return
// ErrAlreadyReleased and any other use panics.
type DMABuffer struct {
	words   []uint32
	bus     uint32
	release func() error

	released bool
}

// NewDMABuffer wraps memory at bus address bus.  release is called by the
// first Release.
func NewDMABuffer(mem []byte, bus uint32, release func() error) *DMABuffer {
	var words = unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), len(mem)/4)

	return &DMABuffer{words: words, bus: bus, release: release}
}

func (b *DMABuffer) Bus() uint32 { return b.bus }

func (b *DMABuffer) Size() int { return len(b.words) * 4 }

// BusAddress is the bus address of the byte at offset.
func (b *DMABuffer) BusAddress(offset uint32) uint32 {
	return b.bus + offset
}

func (b *DMABuffer) PutUint32(offset uint32, v uint32) {
	b.check()
	atomic.StoreUint32(&b.words[offset/4], v)
}

func (b *DMABuffer) Uint32(offset uint32) uint32 {
	b.check()

	return atomic.LoadUint32(&b.words[offset/4])
}

func (b *DMABuffer) Released() bool { return b.released }

func (b *DMABuffer) Release() error {
	if b.released {
		return ErrAlreadyReleased
	}

	b.released = true
	b.words = nil

	if b.release == nil {
		return nil
	}

	if err := b.release(); err != nil {
		return fmt.Errorf("releasing DMA buffer at bus %08X: %w", b.bus, err)
	}

	return nil
}

func (b *DMABuffer) check() {
	if b.released {
		panic(fmt.Sprintf("use of released DMA buffer at bus %08X", b.bus))
	}
}
