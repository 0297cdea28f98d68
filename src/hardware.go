package rfmorse

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Hardware is everything a Transmitter drives.
type Hardware struct {
	CM     Registers // Clock manager, CM_BASE.
	PCM    Registers
	GPIO   Registers
	DMA    Registers
	Memory Allocator
	PTT    PTT

	closers []func() error
}

// OpenHardware maps the peripherals and opens the mailbox and PTT.
// Must be run as root.
func OpenHardware(cfg Config, logger *log.Logger) (*Hardware, error) {
	var hw = &Hardware{}

	var periph, err = OpenPeripherals(cfg.PeripheralBase, logger)
	if err != nil {
		return nil, err
	}

	hw.closers = append(hw.closers, periph.Close)

	var blocks = []struct {
		dst    *Registers
		offset uint32
		length int
	}{
		{&hw.CM, CM_BASE, CM_LEN},
		{&hw.PCM, PCM_BASE, PCM_LEN},
		{&hw.GPIO, GPIO_BASE, GPIO_LEN},
		{&hw.DMA, DMA_BASE, DMA_LEN},
	}

	for _, b := range blocks {
		var m, err = periph.Map(b.offset, b.length)
		if err != nil {
			return nil, errors.Join(err, hw.Close())
		}

		*b.dst = m
	}

	mbox, err := OpenMailbox(logger)
	if err != nil {
		return nil, errors.Join(err, hw.Close())
	}

	hw.Memory = mbox
	hw.closers = append(hw.closers, mbox.Close)

	ptt, err := OpenPTT(cfg.PTT, logger)
	if err != nil {
		return nil, errors.Join(err, hw.Close())
	}

	hw.PTT = ptt
	hw.closers = append(hw.closers, ptt.Close)

	return hw, nil
}

// Close releases in reverse order of opening.
func (hw *Hardware) Close() error {
	var errs []error

	for i := len(hw.closers) - 1; i >= 0; i-- {
		errs = append(errs, hw.closers[i]())
	}

	hw.closers = nil

	return errors.Join(errs...)
}

// Values for a plausible PLLD in FakeHardware: about 500 MHz.
const (
	fakePLLDInteger  = 52
	fakePLLDFraction = 87381
)

// FakeHardware is Hardware with nothing behind it.  PLLD reads back as
// about 500 MHz and both PLLs report lock.
func FakeHardware() *Hardware {
	var cm = NewFakeRegisters()
	cm.Set(PLLD_CTRL, fakePLLDInteger|PLL_CTRL_MODE)
	cm.Set(PLLD_FRAC, fakePLLDFraction)
	cm.Set(PLLD_PER, 1)
	cm.Set(CM_LOCK, CM_LOCK_FLOCKC|CM_LOCK_FLOCKD)

	return &Hardware{
		CM:     cm,
		PCM:    NewFakeRegisters(),
		GPIO:   NewFakeRegisters(),
		DMA:    NewFakeRegisters(),
		Memory: NewFakeAllocator(),
		PTT:    nopPTT{},
	}
}

func (hw *Hardware) String() string {
	return fmt.Sprintf("Hardware{CM:%T PCM:%T GPIO:%T DMA:%T Memory:%T PTT:%T}", hw.CM, hw.PCM, hw.GPIO, hw.DMA, hw.Memory, hw.PTT)
}
