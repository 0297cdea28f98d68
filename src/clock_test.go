package rfmorse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_FindPLLDivider(t *testing.T) {
	var cases = []struct {
		center  uint32
		divider uint32
	}{
		{7100000, 211},
		{14060000, 106},
		{100000, 4095},
		{750000000, 2},
	}

	for _, c := range cases {
		var d, err = FindPLLDivider(c.center)
		require.NoError(t, err, c.center)
		assert.Equal(t, c.divider, d, c.center)
	}
}

func Test_FindPLLDivider_OutOfRange(t *testing.T) {
	for _, center := range []uint32{0, 1, 40000, 48000, 750000001, 900000000} {
		var _, err = FindPLLDivider(center)
		assert.ErrorIs(t, err, ErrNoDivider, center)
	}
}

func Test_FindPLLDivider_Largest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var center = rapid.Uint32Range(1, 800000000).Draw(t, "center")

		var inRange = func(d uint32) bool {
			var vco = uint64(center) * uint64(d)
			return vco >= VCO_MIN && vco <= VCO_MAX
		}

		var divider, err = FindPLLDivider(center)
		if err != nil {
			assert.ErrorIs(t, err, ErrNoDivider)

			for d := uint32(GP0_DIVIDER_MIN); d <= GP0_DIVIDER_MAX; d++ {
				assert.False(t, inRange(d), "divider %d was missed", d)
			}

			return
		}

		assert.True(t, inRange(divider))
		assert.GreaterOrEqual(t, divider, uint32(GP0_DIVIDER_MIN))
		assert.LessOrEqual(t, divider, uint32(GP0_DIVIDER_MAX))

		for d := divider + 1; d <= GP0_DIVIDER_MAX; d++ {
			assert.False(t, inRange(d), "larger divider %d also fits", d)
		}
	})
}

func Test_PLLMultiplier(t *testing.T) {
	var integer, fraction = PLLMultiplier(7100000, 211)
	assert.Equal(t, uint32(78), integer)
	assert.Equal(t, uint32(27306), fraction)
}

func Test_PLLMultiplier_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var center = rapid.Uint32Range(100000, 750000000).Draw(t, "center")

		var divider, err = FindPLLDivider(center)
		require.NoError(t, err)

		var integer, fraction = PLLMultiplier(center, divider)
		assert.LessOrEqual(t, integer, uint32(PLL_INT_MASK))
		assert.LessOrEqual(t, fraction, uint32(PLL_FRAC_MASK))

		// Per divider 1 gives half the VCO.
		var vco = 2 * PLLFrequency(integer, fraction, 1)
		assert.InDelta(t, float64(center)*float64(divider), float64(vco), 64)
	})
}

func Test_PLLFrequency(t *testing.T) {
	assert.Equal(t, uint64(0), PLLFrequency(52, 0, 0))
	assert.Equal(t, uint64(499200000), PLLFrequency(52, 0, 1))
	assert.Equal(t, uint64(499999996), PLLFrequency(fakePLLDInteger, fakePLLDFraction, 1))
	assert.Equal(t, uint64(249600000), PLLFrequency(52, 0, 2))
}

func Test_NewClock(t *testing.T) {
	var cm = fakeClockManager()

	var c, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, uint32(211), c.Divider())

	assert.Equal(t, []uint32{BCM_PASSWD | 4<<CLK_DIV_DIVI_SHIFT}, cm.WritesTo(CM_CORECLK_DIV))
	assert.Equal(t, uint32(BCM_PASSWD|CLK_CTL_ENAB|CLK_CTL_SRC_PLLA), cm.Read(CM_CORECLK_CTL))

	assert.Equal(t, uint32(BCM_PASSWD|CLK_CTL_ENAB|CLK_CTL_SRC_PLLD), cm.Read(CM_EMMCCLK_CTL))
	assert.Empty(t, cm.WritesTo(CM_EMMCCLK_DIV), "EMMC divisor is left alone")

	assert.Equal(t, []uint32{BCM_PASSWD | 211<<CLK_DIV_DIVI_SHIFT}, cm.WritesTo(CM_GP0CLK_DIV))
	assert.Equal(t, uint32(BCM_PASSWD|CLK_CTL_ENAB|CLK_CTL_SRC_PLLC), cm.Read(CM_GP0CLK_CTL))

	assert.Equal(t, uint32(BCM_PASSWD|CLK_CTL_ENAB|CLK_CTL_SRC_PLLD), cm.Read(CM_PCMCLK_CTL))

	assert.Equal(t, []uint32{BCM_PASSWD | CM_PLLC_ENABLE_PER}, cm.WritesTo(CM_PLLC))
	assert.Equal(t, []uint32{BCM_PASSWD | PLLC_CORE_DISABLE}, cm.WritesTo(PLLC_CORE))
	assert.Equal(t, []uint32{BCM_PASSWD | PLLC_PER_DIV1}, cm.WritesTo(PLLC_PER))
	assert.Equal(t, []uint32{BCM_PASSWD | 27306}, cm.WritesTo(PLLC_FRAC))
	assert.Equal(t, []uint32{BCM_PASSWD | 78 | PLL_CTRL_MODE}, cm.WritesTo(PLLC_CTRL))

	assert.Equal(t, PLLState{Integer: 78, Fraction: 27306, Divider: 1, Frequency: PLLFrequency(78, 27306, 1)}, c.PLLC())
	assert.Equal(t, uint64(499999996), c.PLLDFrequency())
	assert.InDelta(t, 7100000.0, c.CarrierFrequency(), 1)

	var pllc, plld = c.Locked()
	assert.True(t, pllc)
	assert.True(t, plld)

	require.NoError(t, c.Close())
}

// The fractional part must be in place before the integer part is written.
func Test_NewClock_FractionFirst(t *testing.T) {
	var cm = fakeClockManager()

	var _, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err)

	var fracAt, ctrlAt = -1, -1

	for i, w := range cm.Writes() {
		switch w.Offset {
		case PLLC_FRAC:
			fracAt = i
		case PLLC_CTRL:
			ctrlAt = i
		}
	}

	require.NotEqual(t, -1, fracAt)
	require.NotEqual(t, -1, ctrlAt)
	assert.Less(t, fracAt, ctrlAt)
}

// The EMMC clock must be off PLLC before PLLC is touched.
func Test_NewClock_MigrationOrder(t *testing.T) {
	var cm = fakeClockManager()

	var _, err = NewClock(cm, 3560000, testTiming(), DiscardLogger())
	require.NoError(t, err)

	var first = map[uint32]int{}

	for i, w := range cm.Writes() {
		if _, ok := first[w.Offset]; !ok {
			first[w.Offset] = i
		}
	}

	assert.Less(t, first[CM_CORECLK_DIV], first[CM_EMMCCLK_CTL])
	assert.Less(t, first[CM_EMMCCLK_CTL], first[CM_GP0CLK_CTL])
	assert.Less(t, first[CM_GP0CLK_CTL], first[PLLC_FRAC])
	assert.Less(t, first[PLLC_CTRL], first[CM_PCMCLK_CTL])
}

func Test_NewClock_NoDividerWritesNothing(t *testing.T) {
	var cm = fakeClockManager()

	var _, err = NewClock(cm, 1000, testTiming(), DiscardLogger())
	require.ErrorIs(t, err, ErrNoDivider)
	assert.Empty(t, cm.Writes())
}

func Test_NewClock_Unresponsive(t *testing.T) {
	var cm = fakeClockManager()
	cm.Set(CM_EMMCCLK_CTL, CLK_CTL_BUSY)
	cm.OnWrite = func(f *FakeRegisters, offset uint32, value uint32) {
		if offset == CM_EMMCCLK_CTL {
			f.Set(offset, value|CLK_CTL_BUSY)
		}
	}

	var _, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.ErrorIs(t, err, ErrClockUnresponsive)

	var kills = cm.WritesTo(CM_EMMCCLK_CTL)
	assert.Len(t, kills, 10)

	for _, k := range kills {
		assert.Equal(t, uint32(BCM_PASSWD|CLK_CTL_KILL), k)
	}

	assert.Empty(t, cm.WritesTo(PLLC_CTRL))
}

func Test_NewClock_BusyClockStops(t *testing.T) {
	var cm = fakeClockManager()
	cm.Set(CM_GP0CLK_CTL, CLK_CTL_BUSY|CLK_CTL_ENAB)

	var kills = 0
	cm.OnWrite = func(f *FakeRegisters, offset uint32, value uint32) {
		if offset == CM_GP0CLK_CTL && value&CLK_CTL_KILL != 0 {
			kills++
			if kills == 3 {
				f.Set(offset, 0)
			} else {
				f.Set(offset, value|CLK_CTL_BUSY)
			}
		}
	}

	var _, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, kills)
}

func Test_Clock_NotLocked(t *testing.T) {
	var cm = fakeClockManager()
	cm.Set(CM_LOCK, CM_LOCK_FLOCKD)

	var c, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err, "failure to lock is not an error")

	var pllc, plld = c.Locked()
	assert.False(t, pllc)
	assert.True(t, plld)
}

func Test_NewClock_SettlesForLock(t *testing.T) {
	var cm = fakeClockManager()

	var timing = testTiming()
	timing.LockSettle = 1234

	var slept []int64
	timing.Sleep = func(d time.Duration) { slept = append(slept, int64(d)) }

	var _, err = NewClock(cm, 7100000, timing, DiscardLogger())
	require.NoError(t, err)
	assert.Contains(t, slept, int64(1234))
}
