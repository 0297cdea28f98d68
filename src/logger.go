package rfmorse

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger makes the diagnostic logger.  Register dumps are at debug level.
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	var lvl, err = log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "rfmorse",
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
	}), nil
}

// DiscardLogger is a logger that writes nowhere.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}
