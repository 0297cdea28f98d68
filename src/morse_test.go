package rfmorse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_Encode_SOS(t *testing.T) {
	var bits, err = Encode("SOS", EncodedCapacity("SOS"))
	require.NoError(t, err)

	assert.Len(t, bits, 30)
	assert.Equal(t, "10101000"+"11101110111000"+"10101000", BitString(bits))
}

func Test_Encode_IgnoresCase(t *testing.T) {
	var upper, err = Encode("CQ DE G4ABC", 1000)
	require.NoError(t, err)

	lower, err := Encode("cq de g4abc", 1000)
	require.NoError(t, err)

	assert.Equal(t, upper, lower)
}

func Test_Encode_Space(t *testing.T) {
	var bits, err = Encode("E E", 100)
	require.NoError(t, err)

	// Three off after the first E, four more for the space: seven in all.
	assert.Equal(t, "1000"+"0000"+"1000", BitString(bits))
}

func Test_Encode_Empty(t *testing.T) {
	var bits, err = Encode("", EncodedCapacity(""))
	require.NoError(t, err)
	assert.Empty(t, bits)
}

func Test_Encode_UnknownCharacter(t *testing.T) {
	for _, msg := range []string{"#", "SOS~", "café"} {
		var _, err = Encode(msg, 1000)
		assert.ErrorIs(t, err, ErrUnknownCharacter, msg)
	}
}

func Test_Encode_BufferTooSmall(t *testing.T) {
	var _, err = Encode("SOS", 10)
	require.ErrorIs(t, err, ErrBufferTooSmall)

	// Worst case is checked, not the actual length.
	_, err = Encode("E", 4*len(".  "))
	require.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = Encode("E", 4*len(".  ")+1)
	require.NoError(t, err)
}

func Test_EncodedLength(t *testing.T) {
	var n, err = EncodedLength("SOS")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	_, err = EncodedLength("S#S")
	assert.ErrorIs(t, err, ErrUnknownCharacter)
}

func Test_EncodedLength_MatchesEncode(t *testing.T) {
	var alphabet = make([]rune, 0, len(MORSE))
	for _, m := range MORSE {
		alphabet = append(alphabet, m.ch)
	}

	rapid.Check(t, func(t *rapid.T) {
		var runes = rapid.SliceOfN(rapid.SampledFrom(alphabet), 0, 30).Draw(t, "message")
		var message = string(runes)

		var n, err = EncodedLength(message)
		require.NoError(t, err)

		bits, err := Encode(message, EncodedCapacity(message))
		require.NoError(t, err)

		assert.Len(t, bits, n)

		// Every character but space ends with at least three units off.
		if len(runes) > 0 && runes[len(runes)-1] != ' ' {
			assert.True(t, strings.HasSuffix(BitString(bits), "000"))
		}
	})
}

func Test_morse_units_ch(t *testing.T) {
	assert.Equal(t, 4, morse_units_ch('E'))
	assert.Equal(t, 4, morse_units_ch(' '))
	assert.Equal(t, 6, morse_units_ch('T'))
	assert.Equal(t, 14, morse_units_ch('o'))
	assert.Equal(t, -1, morse_units_ch('#'))
}

func Test_UnitsDuration(t *testing.T) {
	assert.Equal(t, 120*time.Millisecond, UnitsDuration(1, 10))
	assert.Equal(t, 3600*time.Millisecond, UnitsDuration(30, 10))
	assert.Equal(t, 60*time.Millisecond, UnitsDuration(1, 20))
}
