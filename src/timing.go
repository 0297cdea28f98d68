package rfmorse

import "time"

// Timing holds the delays and retry bounds used while sequencing registers.
//
// The zero value is not useful; start from DefaultTiming.
type Timing struct {
	// Sleep is called for every settle delay.  Tests replace it.
	Sleep func(time.Duration)

	// KillAttempts bounds the number of kill commands issued to a busy
	// clock before giving up with ErrClockUnresponsive.
	KillAttempts int

	// LockSettle is how long to wait after programming the PLLs before
	// looking at the lock status.
	LockSettle time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Sleep:        time.Sleep,
		KillAttempts: 10000,
		LockSettle:   time.Second,
	}
}

func (t Timing) settle(d time.Duration) {
	if t.Sleep != nil {
		t.Sleep(d)
	}
}

const (
	clockSettle      = 10 * time.Microsecond
	registerSettle   = 100 * time.Microsecond
	dmaAbortSettle   = 100 * time.Microsecond
	defaultKillLimit = 10000
)

func (t Timing) killAttempts() int {
	if t.KillAttempts <= 0 {
		return defaultKillLimit
	}

	return t.KillAttempts
}
