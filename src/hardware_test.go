package rfmorse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Hardware_CloseOrder(t *testing.T) {
	var order []string
	var boom = errors.New("boom")

	var closer = func(name string, err error) func() error {
		return func() error {
			order = append(order, name)
			return err
		}
	}

	var hw = &Hardware{closers: []func() error{
		closer("peripherals", nil),
		closer("mailbox", boom),
		closer("ptt", nil),
	}}

	assert.ErrorIs(t, hw.Close(), boom)
	assert.Equal(t, []string{"ptt", "mailbox", "peripherals"}, order)

	// Only once.
	require.NoError(t, hw.Close())
	assert.Len(t, order, 3)
}

func Test_FakeHardware(t *testing.T) {
	var hw = FakeHardware()

	var c, err = NewClock(hw.CM, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, uint64(499999996), c.PLLDFrequency())
	assert.Contains(t, hw.String(), "*rfmorse.FakeRegisters")
	require.NoError(t, hw.Close())
}
