package rfmorse

import "fmt"

// RegisterWrite is one entry in a FakeRegisters journal.
type RegisterWrite struct {
	Offset uint32
	Value  uint32
}

func (w RegisterWrite) String() string {
	return fmt.Sprintf("%04X<-%08X", w.Offset, w.Value)
}

// FakeRegisters is a register block backed by a map.  Reads return the last
// value written unless OnRead says otherwise.
//
// Used by the tests and by dry runs that build a program without hardware.
type FakeRegisters struct {
	values map[uint32]uint32
	writes []RegisterWrite

	// OnRead, if set, runs before each read so a test can play the
	// hardware's part.
	OnRead func(f *FakeRegisters, offset uint32)

	// OnWrite, if set, runs after each write is stored.
	OnWrite func(f *FakeRegisters, offset uint32, value uint32)
}

func NewFakeRegisters() *FakeRegisters {
	return &FakeRegisters{values: make(map[uint32]uint32)}
}

func (f *FakeRegisters) Read(offset uint32) uint32 {
	if f.OnRead != nil {
		f.OnRead(f, offset)
	}

	return f.values[offset]
}

func (f *FakeRegisters) Write(offset uint32, value uint32) {
	f.values[offset] = value
	f.writes = append(f.writes, RegisterWrite{offset, value})

	if f.OnWrite != nil {
		f.OnWrite(f, offset, value)
	}
}

// Set changes a register without journaling, as the hardware would.
func (f *FakeRegisters) Set(offset uint32, value uint32) {
	f.values[offset] = value
}

func (f *FakeRegisters) Writes() []RegisterWrite {
	return f.writes
}

// WritesTo is the sequence of values written to one offset.
func (f *FakeRegisters) WritesTo(offset uint32) []uint32 {
	var values []uint32

	for _, w := range f.writes {
		if w.Offset == offset {
			values = append(values, w.Value)
		}
	}

	return values
}

func (f *FakeRegisters) ResetJournal() {
	f.writes = nil
}

// FakeAllocator hands out ordinary memory with made up bus addresses.
type FakeAllocator struct {
	NextBus uint32
	Live    int
	Total   int

	// Fail, if set, is returned by the next Alloc.
	Fail error
}

func NewFakeAllocator() *FakeAllocator {
	return &FakeAllocator{NextBus: 0xC0100000}
}

func (a *FakeAllocator) Alloc(size int) (*DMABuffer, error) {
	if a.Fail != nil {
		var err = a.Fail
		a.Fail = nil

		return nil, err
	}

	size = roundUp(size, pageSize)

	var bus = a.NextBus
	a.NextBus += uint32(size)
	a.Live++
	a.Total++

	return NewDMABuffer(make([]byte, size), bus, func() error {
		a.Live--

		return nil
	}), nil
}
