package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	PCM peripheral used as the keying timebase.
 *
 * Description:	Nothing is ever heard from the PCM block.  It is
 *		clocked so that one FIFO slot drains every millisecond
 *		and its DMA request line (DREQ) then paces the control
 *		blocks built in dma.go.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// PCM register offsets from PCM_BASE.
const (
	PCM_CS   = 0x00
	PCM_FIFO = 0x04
	PCM_MODE = 0x08
	PCM_RXC  = 0x0C
	PCM_TXC  = 0x10
	PCM_DREQ = 0x14
)

const (
	PCM_CS_EN     = 1 << 0
	PCM_CS_TXON   = 1 << 2
	PCM_CS_TXCLR  = 1 << 3
	PCM_CS_RXCLR  = 1 << 4
	PCM_CS_DMAEN  = 1 << 9
	PCM_TXC_CH1EN = 1 << 30 // One 8 bit channel.

	PCM_MODE_FLEN_SHIFT = 10

	// Request DMA, and panic, when one slot is free.
	PCM_DREQ_TX_ONE_SLOT = 0x40<<24 | 0x40<<8

	PCM_FIFO_SIZE = 0x40

	// DREQ peripheral number of the PCM transmitter.
	PCM_DREQ_TX = 2
)

const (
	TimebaseFrequency = 1000 // Hz, one tick per millisecond.

	preDividerFirst = 10
	preDividerLimit = 1000

	frequencyControlMin = 2.0
	frequencyControlMax = 4096.0

	pcmDivfScale = 4096

	// Ticks in one keying unit at one unit per minute.
	// A unit at 10 per minute is 120 ms, 120 ticks.
	ticksPerUnitMinute = 1200
)

// Timebase is the PCM peripheral running from PLLD.
type Timebase struct {
	clock  *Clock
	cm     Registers
	regs   Registers
	timing Timing
	logger *log.Logger

	preDivider      uint32
	divisorInteger  uint32
	divisorFraction uint32
}

// NewTimebase enables the PCM block.  cm is the clock manager the clock was built on.
func NewTimebase(clock *Clock, cm Registers, regs Registers, timing Timing, logger *log.Logger) *Timebase {
	regs.Write(PCM_CS, PCM_CS_EN)
	logger.Debug("PCM setup complete")

	return &Timebase{clock: clock, cm: cm, regs: regs, timing: timing, logger: logger}
}

/*-------------------------------------------------------------------
 *
 * Name:        SetFrequency
 *
 * Purpose:     Start the 1 kHz tick and DREQ pacing.
 *
 * Inputs:	rate	- Keying rate in units per minute (WPM).
 *
 * Returns:	Ticks per keying unit, 1200 / rate.
 *
 *		ErrNoPreDivider if PLLD can't be divided down to the
 *		tick rate, ErrInvalidRate for a zero rate.  Nothing
 *		has been written in either case.
 *
 *--------------------------------------------------------------------*/

func (tb *Timebase) SetFrequency(rate uint32) (uint32, error) {
	if rate == 0 {
		return 0, ErrInvalidRate
	}

	var preDivider, ratio, err = FindPreDivider(tb.clock.PLLDFrequency(), TimebaseFrequency)
	if err != nil {
		return 0, err
	}

	tb.preDivider = preDivider
	tb.divisorInteger = uint32(ratio)
	tb.divisorFraction = uint32(pcmDivfScale * (ratio - float64(tb.divisorInteger)))

	tb.logger.Info("PCM timebase",
		"prediv", preDivider,
		"frequency_control", fmt.Sprintf("%f", ratio),
		"divi", tb.divisorInteger, "divf", tb.divisorFraction)

	var div = tb.divisorInteger<<CLK_DIV_DIVI_SHIFT | tb.divisorFraction
	if err := migrateClock(tb.cm, tb.timing, tb.logger, pcmClock, CLK_CTL_SRC_PLLD, div); err != nil {
		return 0, err
	}

	var r = tb.regs

	r.Write(PCM_TXC, PCM_TXC_CH1EN)
	tb.timing.settle(registerSettle)
	r.Write(PCM_MODE, (preDivider-1)<<PCM_MODE_FLEN_SHIFT)
	tb.timing.settle(registerSettle)
	setBits(r, PCM_CS, PCM_CS_RXCLR|PCM_CS_TXCLR)
	tb.timing.settle(registerSettle)
	r.Write(PCM_DREQ, PCM_DREQ_TX_ONE_SLOT)
	tb.timing.settle(registerSettle)
	setBits(r, PCM_CS, PCM_CS_DMAEN)
	tb.timing.settle(registerSettle)
	setBits(r, PCM_CS, PCM_CS_TXON)

	return TicksPerUnit(rate), nil
}

// TicksPerUnit converts a keying rate in units per minute to timebase ticks.
// The integer division is intentional; the remainder is dropped.
func TicksPerUnit(rate uint32) uint32 {
	return ticksPerUnitMinute / rate
}

// FindPreDivider returns the smallest pre-divider from 10 up, and below
// 1000, for which pllFrequency / (tick * preDivider) lies strictly between
// 2 and 4096, together with that ratio.
func FindPreDivider(pllFrequency uint64, tick uint32) (uint32, float64, error) {
	for preDivider := uint32(preDividerFirst); preDivider < preDividerLimit; preDivider++ {
		var ratio = float64(pllFrequency) / float64(uint64(tick)*uint64(preDivider))
		if ratio > frequencyControlMin && ratio < frequencyControlMax {
			return preDivider, ratio, nil
		}
	}

	return 0, 0, fmt.Errorf("%w: PLL %d Hz, tick %d Hz", ErrNoPreDivider, pllFrequency, tick)
}

func (tb *Timebase) PreDivider() uint32 { return tb.preDivider }

// Divisor is the integer and 12 bit fractional PCM clock divisor.
func (tb *Timebase) Divisor() (uint32, uint32) { return tb.divisorInteger, tb.divisorFraction }

func (tb *Timebase) TickFrequency() uint32 { return TimebaseFrequency }

// Close stops transmission and DMA requests.
func (tb *Timebase) Close() error {
	clearBits(tb.regs, PCM_CS, PCM_CS_TXON|PCM_CS_DMAEN)
	tb.logger.Debug("Shutting down PCM")

	return nil
}
