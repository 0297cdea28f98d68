package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Access to memory mapped peripheral register blocks.
 *
 * Description:	Every peripheral driver in this package talks to the
 *		hardware through the Registers interface so that the
 *		register sequences can be replayed against FakeRegisters
 *		in tests.
 *
 *		Offsets are byte offsets from the start of the block and
 *		must be 32 bit aligned.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Registers is a 32 bit register block.
type Registers interface {
	Read(offset uint32) uint32
	Write(offset uint32, value uint32)
}

// MappedRegisters is a register block mapped into our address space from /dev/mem.
type MappedRegisters struct {
	mapping []byte // Whole mmap, page aligned.
	words   []uint32
}

// newMappedRegisters views block, which must lie within mapping, as 32 bit words.
func newMappedRegisters(mapping []byte, block []byte) *MappedRegisters {
	var words = unsafe.Slice((*uint32)(unsafe.Pointer(&block[0])), len(block)/4)

	return &MappedRegisters{mapping: mapping, words: words}
}

// Loads and stores are atomic so the compiler can neither merge nor reorder
// them; the bus sees every access in program order.

func (m *MappedRegisters) Read(offset uint32) uint32 {
	return atomic.LoadUint32(&m.words[offset/4])
}

func (m *MappedRegisters) Write(offset uint32, value uint32) {
	atomic.StoreUint32(&m.words[offset/4], value)
}

func (m *MappedRegisters) Size() int {
	return len(m.words) * 4
}

func (m *MappedRegisters) Close() error {
	if m.mapping == nil {
		return nil
	}

	var err = unix.Munmap(m.mapping)
	m.mapping = nil
	m.words = nil

	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}

	return nil
}

// setBits does a read-modify-write, the equivalent of reg |= bits.
func setBits(r Registers, offset uint32, bits uint32) {
	r.Write(offset, r.Read(offset)|bits)
}

// clearBits is reg &= ^bits.
func clearBits(r Registers, offset uint32, bits uint32) {
	r.Write(offset, r.Read(offset)&^bits)
}
