package rfmorse

import (
	"context"
	"errors"
)

var (
	// Configurations the hardware can't realize.
	ErrNoDivider    = errors.New("no PLL divider puts the VCO in range")
	ErrNoPreDivider = errors.New("no PCM pre-divider puts the frequency control in range")
	ErrInvalidRate  = errors.New("keying rate must be positive")

	// Message encoding.
	ErrUnknownCharacter = errors.New("character not found in translation table")
	ErrBufferTooSmall   = errors.New("not enough space in encoded message buffer")

	// Hardware and resource handling.
	ErrHardwareAccess    = errors.New("hardware access failed")
	ErrClockUnresponsive = errors.New("clock domain unresponsive")
	ErrProgramTooLarge   = errors.New("DMA program does not fit its allocation")
	ErrProgramReleased   = errors.New("DMA program already released")
	ErrAlreadyReleased   = errors.New("DMA buffer already released")
	ErrInvalidTicks      = errors.New("ticks per sub-symbol must be positive")
	ErrInvalidPin        = errors.New("invalid GPIO pin")
	ErrInvalidChannel    = errors.New("invalid DMA channel")
)

// Process exit statuses used by the command line tools.
const (
	ExitOK        = 0
	ExitUsage     = 1
	ExitEncoding  = 2
	ExitSynthesis = 3
	ExitHardware  = 4
)

// ExitCode maps an error returned by this package onto a process exit status.
// A cancelled transmission is a normal exit.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitOK
	case errors.Is(err, ErrUnknownCharacter), errors.Is(err, ErrBufferTooSmall):
		return ExitEncoding
	case errors.Is(err, ErrNoDivider), errors.Is(err, ErrNoPreDivider), errors.Is(err, ErrInvalidRate):
		return ExitSynthesis
	case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrInvalidChannel), errors.Is(err, ErrInvalidTicks):
		return ExitUsage
	default:
		return ExitHardware
	}
}
