package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Broadcom clock manager control for RF generation.
 *
 * Description:	PLLC is retuned so that GP0 (general purpose clock 0)
 *		divided down from it lands on the carrier frequency.
 *		Other consumers of PLLC must first be moved to stable
 *		sources, otherwise the core and SD card clocks would
 *		follow our retuning.
 *
 *		PLLD is left alone and becomes the source for the PCM
 *		peripheral which provides the keying timebase.
 *
 *		See https://elinux.org/BCM2835_registers#CM
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Clock manager register offsets, in bytes from CM_BASE.
// Each consumer has a control register followed by a divisor register.
const (
	CM_CORECLK_CTL = 0x0008
	CM_CORECLK_DIV = 0x000C
	CM_GP0CLK_CTL  = 0x0070
	CM_GP0CLK_DIV  = 0x0074
	CM_PCMCLK_CTL  = 0x0098
	CM_PCMCLK_DIV  = 0x009C
	CM_PLLC        = 0x0108
	CM_LOCK        = 0x0114
	CM_EMMCCLK_CTL = 0x01D0
	CM_EMMCCLK_DIV = 0x01D4

	PLLC_CTRL = 0x1120
	PLLD_CTRL = 0x1140
	PLLC_FRAC = 0x1220
	PLLD_FRAC = 0x1240
	PLLC_PER  = 0x1520
	PLLD_PER  = 0x1540
	PLLC_CORE = 0x1620
	PLLD_CORE = 0x1640
)

const (
	BCM_PASSWD = 0x5A << 24

	CLK_CTL_BUSY = 1 << 7
	CLK_CTL_KILL = 1 << 5
	CLK_CTL_ENAB = 1 << 4

	CLK_CTL_SRC_OSC  = 1
	CLK_CTL_SRC_PLLA = 4
	CLK_CTL_SRC_PLLC = 5
	CLK_CTL_SRC_PLLD = 6

	CLK_DIV_DIVI_SHIFT = 12

	CM_LOCK_FLOCKC = 1 << 10
	CM_LOCK_FLOCKD = 1 << 11

	// Control and period values used when handing PLLC over to GP0.
	CM_PLLC_ENABLE_PER = 0x22A
	PLLC_CORE_DISABLE  = 1 << 8
	PLLC_PER_DIV1      = 1

	// Mode field written alongside the PLL integer multiplier.
	PLL_CTRL_MODE = 0x21 << 12
)

const (
	XOSC_FREQUENCY = 19200000

	VCO_MIN = 200000000
	VCO_MAX = 1500000000

	PLL_FRAC_BITS    = 20
	PLL_INT_MASK     = 0x3FF
	PLL_FRAC_MASK    = (1 << PLL_FRAC_BITS) - 1
	PLL_PER_MASK     = 0xFF
	GP0_DIVIDER_MAX  = 4095
	GP0_DIVIDER_MIN  = 2
	CORE_CLK_DIVISOR = 4
)

// clockConsumer names a control/divisor pair of the clock tree.
type clockConsumer struct {
	name string
	ctl  uint32
	div  uint32
}

var (
	coreClock = clockConsumer{"core", CM_CORECLK_CTL, CM_CORECLK_DIV}
	gp0Clock  = clockConsumer{"gp0", CM_GP0CLK_CTL, CM_GP0CLK_DIV}
	pcmClock  = clockConsumer{"pcm", CM_PCMCLK_CTL, CM_PCMCLK_DIV}
	emmcClock = clockConsumer{"emmc", CM_EMMCCLK_CTL, CM_EMMCCLK_DIV}
)

// PLLState is what the PLL registers currently say.
type PLLState struct {
	Integer   uint32
	Fraction  uint32
	Divider   uint32
	Frequency uint64
}

// Clock owns the clock manager for the lifetime of a transmission.
type Clock struct {
	regs   Registers
	timing Timing
	logger *log.Logger

	centerFrequency uint32
	divider         uint32
	pllc            PLLState
	plld            PLLState
}

/*-------------------------------------------------------------------
 *
 * Name:        NewClock
 *
 * Purpose:     Move the clock tree into the RF transmission configuration.
 *
 * Inputs:	regs		- Clock manager register block (CM_BASE).
 *
 *		centerFrequency	- Carrier frequency in Hz.
 *
 * Returns:	ErrNoDivider, before anything is written, when no GP0
 *		divider puts PLLC inside the VCO range.
 *
 *		ErrClockUnresponsive when a consumer won't stop.
 *
 * Description:	Failure to lock is only logged.  Lock can assert a
 *		little after we look and the signal is usually fine.
 *
 *--------------------------------------------------------------------*/

func NewClock(regs Registers, centerFrequency uint32, timing Timing, logger *log.Logger) (*Clock, error) {
	var divider, err = FindPLLDivider(centerFrequency)
	if err != nil {
		return nil, err
	}

	var c = &Clock{
		regs:            regs,
		timing:          timing,
		logger:          logger,
		centerFrequency: centerFrequency,
		divider:         divider,
	}

	if err := c.init(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Clock) init() error {
	var r = c.regs

	// The core clock moves to PLLA.  It is never busy-stopped, that would
	// stop the VPU.
	r.Write(coreClock.div, BCM_PASSWD|(CORE_CLK_DIVISOR<<CLK_DIV_DIVI_SHIFT))
	c.timing.settle(registerSettle)
	r.Write(coreClock.ctl, BCM_PASSWD|CLK_CTL_ENAB|CLK_CTL_SRC_PLLA)

	if err := c.migrate(emmcClock, CLK_CTL_SRC_PLLD, 0); err != nil {
		return err
	}

	c.logger.Info("Clock consumers moved off PLLC")

	if err := c.migrate(gp0Clock, CLK_CTL_SRC_PLLC, c.divider<<CLK_DIV_DIVI_SHIFT); err != nil {
		return err
	}

	r.Write(CM_PLLC, BCM_PASSWD|CM_PLLC_ENABLE_PER)
	c.timing.settle(registerSettle)
	r.Write(PLLC_CORE, BCM_PASSWD|PLLC_CORE_DISABLE)
	r.Write(PLLC_PER, BCM_PASSWD|PLLC_PER_DIV1)

	var before = c.readPLL(PLLC_CTRL, PLLC_FRAC, PLLC_PER)
	c.logger.Debug("PLLC before retuning", "frequency", before.Frequency)
	c.logger.Info("PLLC divider chosen", "divider", c.divider, "center_frequency", c.centerFrequency)

	var integer, fraction = PLLMultiplier(c.centerFrequency, c.divider)

	r.Write(PLLC_FRAC, BCM_PASSWD|fraction)
	c.timing.settle(registerSettle)
	r.Write(PLLC_CTRL, BCM_PASSWD|integer|PLL_CTRL_MODE)

	c.pllc = c.readPLL(PLLC_CTRL, PLLC_FRAC, PLLC_PER)
	c.logger.Info("PLLC programmed",
		"frequency", c.pllc.Frequency,
		"multiplier", fmt.Sprintf("%f", float64(integer)+float64(fraction)/(1<<PLL_FRAC_BITS)),
		"carrier", c.CarrierFrequency())

	// The timebase runs from PLLD.  Its divisor is set later by the Timebase.
	if err := c.migrate(pcmClock, CLK_CTL_SRC_PLLD, 0); err != nil {
		return err
	}

	c.plld = c.readPLL(PLLD_CTRL, PLLD_FRAC, PLLD_PER)
	c.logger.Info("PLLD", "frequency", c.plld.Frequency)

	c.timing.settle(c.timing.LockSettle)
	c.reportLock()

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        migrate
 *
 * Purpose:     Switch a clock consumer to a new source.
 *
 * Inputs:	cc	- Consumer.
 *		src	- CLK_CTL_SRC_*.
 *		div	- New divisor register value, without password.
 *			  0 leaves the divisor alone.
 *
 * Description:	The control register must not be changed while BUSY is
 *		set or the output may glitch, so the clock is killed
 *		first.  The source is selected with ENAB clear and
 *		enabled after a short settle.
 *
 *--------------------------------------------------------------------*/

func (c *Clock) migrate(cc clockConsumer, src uint32, div uint32) error {
	return migrateClock(c.regs, c.timing, c.logger, cc, src, div)
}

func migrateClock(r Registers, t Timing, logger *log.Logger, cc clockConsumer, src uint32, div uint32) error {
	if err := stopClock(r, t, cc); err != nil {
		return err
	}

	if div != 0 {
		r.Write(cc.div, BCM_PASSWD|div)
	}

	r.Write(cc.ctl, BCM_PASSWD|src)
	t.settle(clockSettle)
	setBits(r, cc.ctl, BCM_PASSWD|CLK_CTL_ENAB)

	logger.Debug("clock migrated", "clock", cc.name, "src", src,
		"ctl", fmt.Sprintf("%08X", r.Read(cc.ctl)), "div", fmt.Sprintf("%08X", r.Read(cc.div)))

	return nil
}

func stopClock(r Registers, t Timing, cc clockConsumer) error {
	var limit = t.killAttempts()

	for attempts := 0; r.Read(cc.ctl)&CLK_CTL_BUSY != 0; attempts++ {
		if attempts >= limit {
			return fmt.Errorf("%w: %s clock still busy after %d kill commands", ErrClockUnresponsive, cc.name, attempts)
		}

		r.Write(cc.ctl, BCM_PASSWD|CLK_CTL_KILL)
	}

	return nil
}

func (c *Clock) readPLL(ctrl, frac, per uint32) PLLState {
	var s = PLLState{
		Integer:  c.regs.Read(ctrl) & PLL_INT_MASK,
		Fraction: c.regs.Read(frac) & PLL_FRAC_MASK,
		Divider:  c.regs.Read(per) & PLL_PER_MASK,
	}
	s.Frequency = PLLFrequency(s.Integer, s.Fraction, s.Divider)

	return s
}

// reportLock logs the lock bits and returns them.
func (c *Clock) reportLock() (bool, bool) {
	var pllcLocked, plldLocked = c.Locked()

	if pllcLocked {
		c.logger.Info("PLLC has locked", "frequency", c.pllc.Frequency)
	} else {
		c.logger.Warn("PLLC has failed to lock", "frequency", c.pllc.Frequency)
	}

	if plldLocked {
		c.logger.Info("PLLD has locked", "frequency", c.plld.Frequency)
	} else {
		c.logger.Warn("PLLD has failed to lock", "frequency", c.plld.Frequency)
	}

	return pllcLocked, plldLocked
}

// Locked reads the PLLC and PLLD lock bits.
func (c *Clock) Locked() (bool, bool) {
	var lock = c.regs.Read(CM_LOCK)

	return lock&CM_LOCK_FLOCKC != 0, lock&CM_LOCK_FLOCKD != 0
}

func (c *Clock) PLLCFrequency() uint64 { return c.pllc.Frequency }
func (c *Clock) PLLDFrequency() uint64 { return c.plld.Frequency }
func (c *Clock) PLLC() PLLState { return c.pllc }
func (c *Clock) PLLD() PLLState { return c.plld }
func (c *Clock) Divider() uint32 { return c.divider }

// CarrierFrequency is what GP0 should be producing: the PLLC VCO over the GP0 divider.
func (c *Clock) CarrierFrequency() float64 {
	var vco = XOSC_FREQUENCY * (float64(c.pllc.Integer) + float64(c.pllc.Fraction)/(1<<PLL_FRAC_BITS))

	return vco / float64(c.divider)
}

// Close reports the final lock status.  The clock tree is deliberately left
// in the transmission configuration.
func (c *Clock) Close() error {
	c.logger.Info("Clock shutting down")
	c.reportLock()

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        FindPLLDivider
 *
 * Purpose:     Choose the GP0 divider for a carrier frequency.
 *
 * Returns:	The largest divider in 2 .. 4095 that puts
 *		centerFrequency * divider within the VCO range.
 *
 *--------------------------------------------------------------------*/

func FindPLLDivider(centerFrequency uint32) (uint32, error) {
	for divider := uint32(GP0_DIVIDER_MAX); divider >= GP0_DIVIDER_MIN; divider-- {
		var vco = uint64(centerFrequency) * uint64(divider)
		if vco < VCO_MIN || vco > VCO_MAX {
			continue
		}

		return divider, nil
	}

	return 0, fmt.Errorf("%w: center frequency %d Hz", ErrNoDivider, centerFrequency)
}

// PLLMultiplier splits centerFrequency * divider / XOSC into the 10 bit
// integer and 20 bit fractional PLL fields.
func PLLMultiplier(centerFrequency uint32, divider uint32) (uint32, uint32) {
	var multiplier = (float64(centerFrequency) * float64(divider)) / XOSC_FREQUENCY
	var scaled = uint64(multiplier * (1 << PLL_FRAC_BITS))

	return uint32(scaled>>PLL_FRAC_BITS) & PLL_INT_MASK, uint32(scaled) & PLL_FRAC_MASK
}

// PLLFrequency is XOSC * (integer + fraction/2^20) / (2 * divider).
// A divider of zero means the output is off.
func PLLFrequency(integer, fraction, divider uint32) uint64 {
	if divider == 0 {
		return 0
	}

	var scaled = uint64(XOSC_FREQUENCY)*uint64(integer) + (uint64(XOSC_FREQUENCY)*uint64(fraction))>>PLL_FRAC_BITS

	return scaled / (2 * uint64(divider))
}
