package rfmorse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_TicksPerUnit(t *testing.T) {
	var cases = map[uint32]uint32{
		1:    1200,
		5:    240,
		7:    171, // 171.43 truncated.
		10:   120,
		12:   100,
		20:   60,
		1200: 1,
		1201: 0,
	}

	for rate, ticks := range cases {
		assert.Equal(t, ticks, TicksPerUnit(rate), "rate %d", rate)
	}
}

func Test_FindPreDivider(t *testing.T) {
	var preDivider, ratio, err = FindPreDivider(499999996, TimebaseFrequency)
	require.NoError(t, err)
	assert.Equal(t, uint32(123), preDivider)
	assert.InDelta(t, 4065.0406, ratio, 0.001)

	// Small enough that the first candidate works.
	preDivider, _, err = FindPreDivider(500000, TimebaseFrequency)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), preDivider)
}

func Test_FindPreDivider_None(t *testing.T) {
	for _, pll := range []uint64{0, 20000, 5000000000} {
		var _, _, err = FindPreDivider(pll, TimebaseFrequency)
		assert.ErrorIs(t, err, ErrNoPreDivider, pll)
	}
}

func Test_FindPreDivider_Smallest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var pll = rapid.Uint64Range(0, 5000000000).Draw(t, "pll")

		var valid = func(p uint32) bool {
			var r = float64(pll) / float64(TimebaseFrequency*uint64(p))
			return r > 2 && r < 4096
		}

		var preDivider, ratio, err = FindPreDivider(pll, TimebaseFrequency)
		if err != nil {
			for p := uint32(preDividerFirst); p < preDividerLimit; p++ {
				assert.False(t, valid(p), "pre-divider %d was missed", p)
			}

			return
		}

		assert.True(t, valid(preDivider))
		assert.Greater(t, ratio, 2.0)
		assert.Less(t, ratio, 4096.0)

		for p := uint32(preDividerFirst); p < preDivider; p++ {
			assert.False(t, valid(p), "smaller pre-divider %d also fits", p)
		}
	})
}

func newTestTimebase(t *testing.T) (*Timebase, *FakeRegisters, *FakeRegisters) {
	t.Helper()

	var cm = fakeClockManager()

	var clock, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err)

	cm.ResetJournal()

	var pcm = NewFakeRegisters()

	return NewTimebase(clock, cm, pcm, testTiming(), DiscardLogger()), cm, pcm
}

func Test_Timebase_SetFrequency(t *testing.T) {
	var tb, cm, pcm = newTestTimebase(t)

	var ticks, err = tb.SetFrequency(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(120), ticks)

	assert.Equal(t, uint32(123), tb.PreDivider())

	var divi, divf = tb.Divisor()
	assert.Equal(t, uint32(4065), divi)
	assert.Equal(t, uint32(166), divf)

	assert.Equal(t, []uint32{BCM_PASSWD | 4065<<CLK_DIV_DIVI_SHIFT | 166}, cm.WritesTo(CM_PCMCLK_DIV))
	assert.Equal(t, uint32(BCM_PASSWD|CLK_CTL_ENAB|CLK_CTL_SRC_PLLD), cm.Read(CM_PCMCLK_CTL))

	assert.Equal(t, []uint32{PCM_TXC_CH1EN}, pcm.WritesTo(PCM_TXC))
	assert.Equal(t, []uint32{122 << PCM_MODE_FLEN_SHIFT}, pcm.WritesTo(PCM_MODE))
	assert.Equal(t, []uint32{0x40<<24 | 0x40<<8}, pcm.WritesTo(PCM_DREQ))

	assert.Equal(t, []uint32{
		PCM_CS_EN,
		PCM_CS_EN | PCM_CS_RXCLR | PCM_CS_TXCLR,
		PCM_CS_EN | PCM_CS_RXCLR | PCM_CS_TXCLR | PCM_CS_DMAEN,
		PCM_CS_EN | PCM_CS_RXCLR | PCM_CS_TXCLR | PCM_CS_DMAEN | PCM_CS_TXON,
	}, pcm.WritesTo(PCM_CS))

	// Transmission is switched on last.
	var writes = pcm.Writes()
	assert.Equal(t, RegisterWrite{PCM_CS, PCM_CS_EN | PCM_CS_RXCLR | PCM_CS_TXCLR | PCM_CS_DMAEN | PCM_CS_TXON}, writes[len(writes)-1])
}

func Test_Timebase_InvalidRate(t *testing.T) {
	var tb, cm, pcm = newTestTimebase(t)

	pcm.ResetJournal()

	var _, err = tb.SetFrequency(0)
	require.ErrorIs(t, err, ErrInvalidRate)
	assert.Empty(t, pcm.Writes())
	assert.Empty(t, cm.Writes())
}

func Test_Timebase_NoPreDivider(t *testing.T) {
	var cm = NewFakeRegisters() // PLLD reads back as off.

	var clock, err = NewClock(cm, 7100000, testTiming(), DiscardLogger())
	require.NoError(t, err)
	require.Equal(t, uint64(0), clock.PLLDFrequency())

	cm.ResetJournal()

	var pcm = NewFakeRegisters()
	var tb = NewTimebase(clock, cm, pcm, testTiming(), DiscardLogger())

	pcm.ResetJournal()

	_, err = tb.SetFrequency(10)
	require.ErrorIs(t, err, ErrNoPreDivider)
	assert.Empty(t, pcm.Writes())
	assert.Empty(t, cm.Writes())
}

func Test_Timebase_Close(t *testing.T) {
	var tb, _, pcm = newTestTimebase(t)

	var _, err = tb.SetFrequency(20)
	require.NoError(t, err)

	require.NoError(t, tb.Close())

	var cs = pcm.Read(PCM_CS)
	assert.Zero(t, cs&PCM_CS_TXON)
	assert.Zero(t, cs&PCM_CS_DMAEN)
	assert.NotZero(t, cs&PCM_CS_EN)
}
