package rfmorse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRanges(t *testing.T, b []byte) string {
	t.Helper()

	var path = filepath.Join(t.TempDir(), "ranges")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	return path
}

func Test_DiscoverPeripheralBase(t *testing.T) {
	// Pi 2 and 3.
	var path = writeRanges(t, []byte{
		0x7E, 0x00, 0x00, 0x00,
		0x3F, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	})
	assert.Equal(t, uint32(0x3F000000), DiscoverPeripheralBase(path))

	// Pi 4, two cell parent address.
	path = writeRanges(t, []byte{
		0x7E, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xFE, 0x00, 0x00, 0x00,
		0x01, 0x80, 0x00, 0x00,
	})
	assert.Equal(t, uint32(0xFE000000), DiscoverPeripheralBase(path))

	// Pi 1 and Zero, or anything unreadable.
	assert.Equal(t, uint32(BCM2835PeripheralBase), DiscoverPeripheralBase(filepath.Join(t.TempDir(), "missing")))
	assert.Equal(t, uint32(BCM2835PeripheralBase), DiscoverPeripheralBase(writeRanges(t, []byte{1, 2, 3})))
}

func Test_roundUp(t *testing.T) {
	assert.Equal(t, 0, roundUp(0, pageSize))
	assert.Equal(t, 4096, roundUp(1, pageSize))
	assert.Equal(t, 4096, roundUp(4096, pageSize))
	assert.Equal(t, 8192, roundUp(4097, pageSize))
}

func Test_PeripheralAddresses(t *testing.T) {
	assert.Equal(t, uint32(0x7E101000), uint32(PeripheralBusBase+CM_BASE))
	assert.Equal(t, uint32(0x7E200000), uint32(PeripheralBusBase+GPIO_BASE))
	assert.Equal(t, uint32(0x7E203000), uint32(PeripheralBusBase+PCM_BASE))
	assert.Equal(t, uint32(0x7E007000), uint32(PeripheralBusBase+DMA_BASE))
}
