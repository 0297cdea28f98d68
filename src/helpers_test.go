package rfmorse

import (
	"time"
)

// testTiming never sleeps.
func testTiming() Timing {
	return Timing{
		Sleep:        func(time.Duration) {},
		KillAttempts: 10,
	}
}

// fakeClockManager has PLLD running at about 500 MHz, as FakeHardware does.
func fakeClockManager() *FakeRegisters {
	return FakeHardware().CM.(*FakeRegisters)
}
