package rfmorse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewLogger(t *testing.T) {
	var buf bytes.Buffer

	var logger, err = NewLogger(&buf, "warn")
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud", "pin", 4)

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.Contains(t, buf.String(), "pin=4")

	_, err = NewLogger(&buf, "chatty")
	assert.Error(t, err)
}
