package rfmorse

import (
	"fmt"

	"github.com/charmbracelet/log"
)

const (
	GPIO_FSEL0 = 0x00

	GPIO_PIN_MAX = 53

	GPIO_FSEL_INPUT = 0
	GPIO_FSEL_ALT0  = 4
	GPIO_FSEL_ALT1  = 5
	GPIO_FSEL_ALT2  = 6
	GPIO_FSEL_ALT3  = 7
	GPIO_FSEL_ALT4  = 3
	GPIO_FSEL_ALT5  = 2

	gpioFselMask = 7
)

// GPIO is one pin of the GPIO block, as far as its function select goes.
//
// The DMA program keys the carrier by rewriting the whole function select
// register holding the pin, so the other nine pins in that register are
// captured here at construction and must not change while transmitting.
type GPIO struct {
	regs   Registers
	pin    uint32
	fsel   uint32 // Register offset.
	shift  uint32
	logger *log.Logger

	pinModeSettings uint32
}

func NewGPIO(regs Registers, pin uint32, logger *log.Logger) (*GPIO, error) {
	if pin > GPIO_PIN_MAX {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}

	var g = &GPIO{
		regs:   regs,
		pin:    pin,
		fsel:   GPIO_FSEL0 + 4*(pin/10),
		shift:  3 * (pin % 10),
		logger: logger,
	}
	g.pinModeSettings = regs.Read(g.fsel)

	logger.Debug("GPIO", "pin", pin, "fsel", fmt.Sprintf("%08X", g.pinModeSettings))

	return g, nil
}

func (g *GPIO) Pin() uint32 { return g.pin }

// FunctionSelectOffset is the offset of the pin's GPFSEL register in the GPIO block.
func (g *GPIO) FunctionSelectOffset() uint32 { return g.fsel }

// SelectWord is the GPFSEL register value with this pin set to function fn.
func (g *GPIO) SelectWord(fn uint32) uint32 {
	return (g.pinModeSettings &^ (gpioFselMask << g.shift)) | ((fn & gpioFselMask) << g.shift)
}

func (g *GPIO) InputSelectWord() uint32 {
	return g.SelectWord(GPIO_FSEL_INPUT)
}

// SetInput returns the pin to an input, which stops any clock output on it.
func (g *GPIO) SetInput() {
	g.regs.Write(g.fsel, g.InputSelectWord())
}
