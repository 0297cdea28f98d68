package rfmorse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewGPIO(t *testing.T) {
	var cases = []struct {
		pin    uint32
		offset uint32
	}{
		{0, 0x00},
		{4, 0x00},
		{9, 0x00},
		{10, 0x04},
		{20, 0x08},
		{27, 0x08},
		{53, 0x14},
	}

	for _, c := range cases {
		var g, err = NewGPIO(NewFakeRegisters(), c.pin, DiscardLogger())
		require.NoError(t, err)
		assert.Equal(t, c.offset, g.FunctionSelectOffset(), "pin %d", c.pin)
		assert.Equal(t, c.pin, g.Pin())
	}

	var _, err = NewGPIO(NewFakeRegisters(), 54, DiscardLogger())
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func Test_GPIO_SelectWord(t *testing.T) {
	var regs = NewFakeRegisters()
	regs.Set(0x08, 0o1111111111) // GPIO20..29 all output.

	var g, err = NewGPIO(regs, 27, DiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, uint32(0o1121111111), g.SelectWord(GPIO_FSEL_ALT5))
	assert.Equal(t, uint32(0o1101111111), g.InputSelectWord())

	// The other pins come from when the GPIO was made, not from now.
	regs.Set(0x08, 0)
	assert.Equal(t, uint32(0o1141111111), g.SelectWord(GPIO_FSEL_ALT0))
}

func Test_GPIO_SetInput(t *testing.T) {
	var regs = NewFakeRegisters()
	regs.Set(0x00, 0o40000)

	var g, err = NewGPIO(regs, 4, DiscardLogger())
	require.NoError(t, err)

	g.SetInput()
	assert.Equal(t, []uint32{0}, regs.WritesTo(0x00))
}
