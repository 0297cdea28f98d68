package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	DMA control blocks that key the carrier.
 *
 * Description:	The message is turned into a chain of DMA control
 *		blocks which the DMA controller walks on its own:
 *
 *		  priming	PCM_FIFO_SIZE+1 paced writes of a dummy
 *				word which fill the PCM FIFO so that
 *				the first pacer really waits one tick.
 *
 *		  keyer		Unpaced write of the pin's function
 *				select word: clock output for a 1 bit,
 *				input for a 0 bit.
 *
 *		  pacer		One paced dummy write to the PCM FIFO.
 *				It completes when the FIFO has drained
 *				one slot, i.e. one timebase tick later.
 *
 *		  terminal	Pin back to input and a zero next pointer.
 *
 *		A keyer/pacer pair is emitted per tick, so each keying
 *		bit appears ticksPerSubSymbol times in a row.
 *
 *		Every address in a control block is a bus address.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
)

// DMA control block "info" field bits.
const (
	DMA_NO_WIDE_BURSTS = 1 << 26
	DMA_PERMAP_SHIFT   = 16
	DMA_DEST_DREQ      = 1 << 6
	DMA_WAIT_RESP      = 1 << 3
)

// DMA channel CS register bits.
const (
	DMA_CS_RESET          = 1 << 31
	DMA_CS_ABORT          = 1 << 30
	DMA_CS_DISDEBUG       = 1 << 29
	DMA_CS_WAIT_ON_WRITES = 1 << 28
	DMA_CS_PANIC_SHIFT    = 20
	DMA_CS_PRIORITY_SHIFT = 16
	DMA_CS_INT            = 1 << 2
	DMA_CS_END            = 1 << 1
	DMA_CS_ACTIVE         = 1 << 0

	DMA_PRIORITY = 8
)

// DMA channel registers, relative to the channel.
const (
	DMA_CS        = 0x00
	DMA_CONBLK_AD = 0x04

	DMA_CHANNEL_STRIDE  = 0x100
	DMA_CHANNEL_MINIMUM = 0
	DMA_CHANNEL_MAXIMUM = 14
)

const (
	controlBlockSize = 32 // Six words used, two of padding.

	keyedInfo = DMA_NO_WIDE_BURSTS | DMA_WAIT_RESP
	pacedInfo = DMA_NO_WIDE_BURSTS | DMA_WAIT_RESP | DMA_DEST_DREQ | PCM_DREQ_TX<<DMA_PERMAP_SHIFT
)

// ControlBlock is one DMA transfer instruction.
type ControlBlock struct {
	TransferInfo uint32
	Source       uint32
	Destination  uint32
	Length       uint32
	Stride       uint32
	Next         uint32
}

// DMATargets are the bus addresses and values a program writes.
type DMATargets struct {
	GPIOSelect uint32 // Bus address of the pin's GPFSEL register.
	PCMFifo    uint32 // Bus address of the PCM FIFO.
	ClockWord  uint32 // GPFSEL value routing the clock to the pin.
	InputWord  uint32 // GPFSEL value making the pin an input.
}

// TargetsFor builds DMATargets for a pin keyed with clock function fn.
func TargetsFor(gpio *GPIO, fn uint32) DMATargets {
	return DMATargets{
		GPIOSelect: PeripheralBusBase + GPIO_BASE + gpio.FunctionSelectOffset(),
		PCMFifo:    PeripheralBusBase + PCM_BASE + PCM_FIFO,
		ClockWord:  gpio.SelectWord(fn),
		InputWord:  gpio.InputSelectWord(),
	}
}

// ProgramLength is the number of control blocks for subSymbols keying
// bits each held for ticks timebase ticks.
func ProgramLength(subSymbols int, ticks uint32) int {
	return PCM_FIFO_SIZE + 1 + 2*subSymbols*int(ticks) + 1
}

// ProgramSize is the allocation needed: the control blocks followed by
// the two function select words.
func ProgramSize(subSymbols int, ticks uint32) int {
	return ProgramLength(subSymbols, ticks)*controlBlockSize + 2*4
}

// DMAProgram is a built control block chain living in a DMABuffer.
type DMAProgram struct {
	buf    *DMABuffer
	length int
}

func (p *DMAProgram) Len() int { return p.length }

func (p *DMAProgram) blockOffset(i int) uint32 {
	return uint32(i * controlBlockSize)
}

func (p *DMAProgram) clockWordOffset() uint32 { return p.blockOffset(p.length) }

func (p *DMAProgram) inputWordOffset() uint32 { return p.blockOffset(p.length) + 4 }

// BlockBusAddress is where the DMA controller finds block i.
func (p *DMAProgram) BlockBusAddress(i int) uint32 {
	return p.buf.BusAddress(p.blockOffset(i))
}

func (p *DMAProgram) ClockWordBusAddress() uint32 { return p.buf.BusAddress(p.clockWordOffset()) }

func (p *DMAProgram) InputWordBusAddress() uint32 { return p.buf.BusAddress(p.inputWordOffset()) }

func (p *DMAProgram) Block(i int) ControlBlock {
	var o = p.blockOffset(i)

	return ControlBlock{
		TransferInfo: p.buf.Uint32(o),
		Source:       p.buf.Uint32(o + 4),
		Destination:  p.buf.Uint32(o + 8),
		Length:       p.buf.Uint32(o + 12),
		Stride:       p.buf.Uint32(o + 16),
		Next:         p.buf.Uint32(o + 20),
	}
}

func (p *DMAProgram) Blocks() []ControlBlock {
	var blocks = make([]ControlBlock, p.length)
	for i := range blocks {
		blocks[i] = p.Block(i)
	}

	return blocks
}

func (p *DMAProgram) put(i int, cb ControlBlock) {
	var o = p.blockOffset(i)

	p.buf.PutUint32(o, cb.TransferInfo)
	p.buf.PutUint32(o+4, cb.Source)
	p.buf.PutUint32(o+8, cb.Destination)
	p.buf.PutUint32(o+12, cb.Length)
	p.buf.PutUint32(o+16, cb.Stride)
	p.buf.PutUint32(o+20, cb.Next)
}

/*-------------------------------------------------------------------
 *
 * Name:        BuildProgram
 *
 * Purpose:     Write the control block chain for a keying sequence.
 *
 * Inputs:	buf		- Zeroed DMA memory of at least
 *				  ProgramSize bytes.
 *
 *		subSymbols	- Keying bits, true for carrier on.
 *
 *		ticks		- Timebase ticks per keying bit.
 *
 *		targets		- Where and what to write.
 *
 * Returns:	ErrInvalidTicks, or ErrProgramTooLarge when buf is too
 *		small or the chain would run off the end of the 32 bit
 *		bus address space.
 *
 *--------------------------------------------------------------------*/

func BuildProgram(buf *DMABuffer, subSymbols []bool, ticks uint32, targets DMATargets) (*DMAProgram, error) {
	if ticks == 0 {
		return nil, ErrInvalidTicks
	}

	var slots = uint64(len(subSymbols)) * uint64(ticks)
	var size = (PCM_FIFO_SIZE+1+2*slots+1)*controlBlockSize + 2*4

	if size > math.MaxInt32 || uint64(buf.Size()) < size {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrProgramTooLarge, size, buf.Size())
	}

	if uint64(buf.Bus())+size > math.MaxUint32 {
		return nil, fmt.Errorf("%w: bus %08X + %d bytes", ErrProgramTooLarge, buf.Bus(), size)
	}

	var p = &DMAProgram{buf: buf, length: ProgramLength(len(subSymbols), ticks)}

	buf.PutUint32(p.clockWordOffset(), targets.ClockWord)
	buf.PutUint32(p.inputWordOffset(), targets.InputWord)

	var index = 0
	var emit = func(info, src, dest uint32) {
		p.put(index, ControlBlock{
			TransferInfo: info,
			Source:       src,
			Destination:  dest,
			Length:       4,
			Next:         p.BlockBusAddress(index + 1),
		})
		index++
	}

	// Fill the FIFO.  The pin stays an input meanwhile.
	for range PCM_FIFO_SIZE + 1 {
		emit(pacedInfo, p.InputWordBusAddress(), targets.PCMFifo)
	}

	for _, on := range subSymbols {
		var src = p.InputWordBusAddress()
		if on {
			src = p.ClockWordBusAddress()
		}

		for range ticks {
			emit(keyedInfo, src, targets.GPIOSelect)
			emit(pacedInfo, p.BlockBusAddress(0), targets.PCMFifo) // Any word will do.
		}
	}

	p.put(index, ControlBlock{
		TransferInfo: keyedInfo,
		Source:       p.InputWordBusAddress(),
		Destination:  targets.GPIOSelect,
		Length:       4,
		Next:         0,
	})

	return p, nil
}

// Dump logs every control block at debug level.
func (p *DMAProgram) Dump(logger *log.Logger) {
	for i := range p.length {
		var cb = p.Block(i)
		logger.Debug("control block",
			"index", i,
			"addr", fmt.Sprintf("%08X", p.BlockBusAddress(i)),
			"txinfo", fmt.Sprintf("%08X", cb.TransferInfo),
			"src", fmt.Sprintf("%08X", cb.Source),
			"dest", fmt.Sprintf("%08X", cb.Destination),
			"len", cb.Length,
			"next", fmt.Sprintf("%08X", cb.Next))
	}
}

// DMAState is the channel state as the CS register reports it.
type DMAState int

const (
	DMAReset DMAState = iota
	DMARunning
	DMAStopped
)

func (s DMAState) String() string {
	switch s {
	case DMAReset:
		return "reset"
	case DMARunning:
		return "running"
	case DMAStopped:
		return "stopped"
	default:
		return fmt.Sprintf("DMAState(%d)", int(s))
	}
}

// DMAChannel runs a keying program on one DMA channel.
type DMAChannel struct {
	regs    Registers
	base    uint32
	channel uint32
	alloc   Allocator
	timing  Timing
	logger  *log.Logger

	subSymbols []bool
	ticks      uint32
	targets    DMATargets

	program *DMAProgram // nil once released.
}

/*-------------------------------------------------------------------
 *
 * Name:        NewDMAChannel
 *
 * Purpose:     Allocate and build the program for a keying sequence.
 *
 * Inputs:	regs	- DMA register block (DMA_BASE).
 *
 *		channel	- 0 .. 14.  Pick one the kernel isn't using.
 *
 *		alloc	- Source of DMA memory.
 *
 * Description:	subSymbols is copied; the caller may reuse it.
 *
 *--------------------------------------------------------------------*/

func NewDMAChannel(regs Registers, channel uint32, alloc Allocator, subSymbols []bool, ticks uint32, targets DMATargets, timing Timing, logger *log.Logger) (*DMAChannel, error) {
	if channel > DMA_CHANNEL_MAXIMUM {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	if ticks == 0 {
		return nil, ErrInvalidTicks
	}

	var c = &DMAChannel{
		regs:       regs,
		base:       channel * DMA_CHANNEL_STRIDE,
		channel:    channel,
		alloc:      alloc,
		timing:     timing,
		logger:     logger,
		subSymbols: append([]bool(nil), subSymbols...),
		ticks:      ticks,
		targets:    targets,
	}

	logger.Info("Constructing DMA channel", "channel", channel, "sub_symbols", len(subSymbols), "ticks", ticks)

	if err := c.build(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *DMAChannel) build() error {
	var size = ProgramSize(len(c.subSymbols), c.ticks)

	var buf, err = c.alloc.Alloc(size)
	if err != nil {
		return err
	}

	p, err := BuildProgram(buf, c.subSymbols, c.ticks, c.targets)
	if err != nil {
		buf.Release() //nolint:errcheck

		return err
	}

	c.program = p
	c.logger.Debug("DMA program built", "blocks", p.Len(), "bus", fmt.Sprintf("%08X", buf.Bus()))
	p.Dump(c.logger)

	return nil
}

// Program is the current program, nil after Stop.
func (c *DMAChannel) Program() *DMAProgram { return c.program }

/*-------------------------------------------------------------------
 *
 * Name:        Start
 *
 * Purpose:     Reset the channel and run the program from block 0.
 *
 * Description:	Works from any state.  After Stop the program is
 *		rebuilt into fresh memory first.
 *
 *--------------------------------------------------------------------*/

func (c *DMAChannel) Start() error {
	if c.program == nil {
		if err := c.build(); err != nil {
			return err
		}
	}

	c.logger.Info("Starting DMA channel", "channel", c.channel)

	var r = c.regs
	var cs = c.base + DMA_CS
	var cb = c.base + DMA_CONBLK_AD

	r.Write(cs, DMA_CS_ABORT)
	r.Write(cs, 0)
	r.Write(cs, DMA_CS_RESET)
	r.Write(cb, 0)

	// Write one to clear.
	r.Write(cs, DMA_CS_INT|DMA_CS_END)

	r.Write(cb, c.program.BlockBusAddress(0))
	r.Write(cs, DMA_PRIORITY<<DMA_CS_PRIORITY_SHIFT|DMA_PRIORITY<<DMA_CS_PANIC_SHIFT|DMA_CS_DISDEBUG)
	setBits(r, cs, DMA_CS_WAIT_ON_WRITES|DMA_CS_ACTIVE)

	return nil
}

// IsRunning reports the channel's ACTIVE bit.
func (c *DMAChannel) IsRunning() bool {
	var cs = c.regs.Read(c.base + DMA_CS)
	c.logger.Debug("DMA status", "cs", fmt.Sprintf("%08X", cs))

	return cs&DMA_CS_ACTIVE != 0
}

func (c *DMAChannel) State() DMAState {
	var cs = c.regs.Read(c.base + DMA_CS)

	switch {
	case cs&DMA_CS_ACTIVE != 0:
		return DMARunning
	case cs&DMA_CS_END != 0:
		return DMAStopped
	default:
		return DMAReset
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Stop
 *
 * Purpose:     Abort the channel and free the program memory.
 *
 * Returns:	ErrProgramReleased if there is nothing to stop; the
 *		hardware is not touched in that case.
 *
 *--------------------------------------------------------------------*/

func (c *DMAChannel) Stop() error {
	if c.program == nil {
		return ErrProgramReleased
	}

	c.logger.Info("Stopping DMA channel", "channel", c.channel)

	var r = c.regs
	var cs = c.base + DMA_CS

	setBits(r, cs, DMA_CS_ABORT)
	c.timing.settle(dmaAbortSettle)
	clearBits(r, cs, DMA_CS_ACTIVE)
	setBits(r, cs, DMA_CS_RESET)
	c.timing.settle(dmaAbortSettle)

	var buf = c.program.buf
	c.program = nil

	return buf.Release()
}
