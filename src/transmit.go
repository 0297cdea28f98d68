package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Send a message: synthesizer, timebase, DMA program,
 *		then wait for the DMA controller to finish.
 *
 * Description:	Everything that can fail without touching hardware is
 *		done first: the message is encoded before the clocks
 *		are changed, and the divider search happens before any
 *		clock register is written.
 *
 *		Once the DMA channel has been started, every way out goes
 *		through the same teardown: stop the channel, pin back to
 *		input, PCM off, PTT off.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const (
	OutcomeComplete  = "complete"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
)

// Transmitter sends messages on the configured pin.
type Transmitter struct {
	hw      *Hardware
	cfg     Config
	timing  Timing
	journal *Journal
	logger  *log.Logger

	now func() time.Time
}

// NewTransmitter doesn't touch the hardware.  journal may be nil.
func NewTransmitter(hw *Hardware, cfg Config, journal *Journal, logger *log.Logger) *Transmitter {
	return &Transmitter{
		hw:      hw,
		cfg:     cfg,
		timing:  cfg.Timing(),
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// Session is one message made ready to go: clocks running, PCM ticking
// and the DMA program built but not started.
type Session struct {
	clock    *Clock
	timebase *Timebase
	gpio     *GPIO
	dma      *DMAChannel

	bits  []bool
	ticks uint32
}

func (s *Session) Clock() *Clock { return s.clock }

func (s *Session) Timebase() *Timebase { return s.timebase }

func (s *Session) DMA() *DMAChannel { return s.dma }

func (s *Session) Bits() []bool { return s.bits }

func (s *Session) TicksPerSubSymbol() uint32 { return s.ticks }

// Duration is how long the DMA program should take to run, priming included.
func (s *Session) Duration() time.Duration {
	var ticks = uint64(len(s.bits))*uint64(s.ticks) + PCM_FIFO_SIZE + 1

	return time.Duration(ticks) * time.Second / TimebaseFrequency
}

/*-------------------------------------------------------------------
 *
 * Name:        Prepare
 *
 * Purpose:     Set up everything for one message short of starting DMA.
 *
 * Inputs:	frequency	- Carrier in Hz.
 *
 *		wpm		- Keying rate in units per minute.
 *
 * Returns:	Encoding errors before any hardware is touched.
 *		ErrNoDivider or ErrInvalidRate likewise.
 *
 * Description:	The caller must Close the Session.
 *
 *--------------------------------------------------------------------*/

func (t *Transmitter) Prepare(frequency uint32, wpm uint32, message string) (*Session, error) {
	var bits, err = Encode(message, EncodedCapacity(message))
	if err != nil {
		return nil, err
	}

	t.logger.Debug("Encoded", "message", message, "bits", BitString(bits))

	if wpm == 0 || TicksPerUnit(wpm) == 0 {
		return nil, fmt.Errorf("%w: %d WPM", ErrInvalidRate, wpm)
	}

	fn, err := t.cfg.PinFunctionCode()
	if err != nil {
		return nil, err
	}

	if _, err := FindPLLDivider(frequency); err != nil {
		return nil, err
	}

	var s = &Session{bits: bits}

	s.clock, err = NewClock(t.hw.CM, frequency, t.timing, t.logger)
	if err != nil {
		return nil, err
	}

	s.timebase = NewTimebase(s.clock, t.hw.CM, t.hw.PCM, t.timing, t.logger)

	s.ticks, err = s.timebase.SetFrequency(wpm)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	s.gpio, err = NewGPIO(t.hw.GPIO, t.cfg.Pin, t.logger)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	s.dma, err = NewDMAChannel(t.hw.DMA, t.cfg.DMAChannel, t.hw.Memory, bits, s.ticks, TargetsFor(s.gpio, fn), t.timing, t.logger)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	return s, nil
}

// Close stops DMA if it has a program, then puts the pin and PCM back.
func (s *Session) Close() error {
	var errs []error

	if s.dma != nil && s.dma.Program() != nil {
		errs = append(errs, s.dma.Stop())
	}

	if s.gpio != nil {
		s.gpio.SetInput()
	}

	if s.timebase != nil {
		errs = append(errs, s.timebase.Close())
	}

	if s.clock != nil {
		errs = append(errs, s.clock.Close())
	}

	return errors.Join(errs...)
}

/*-------------------------------------------------------------------
 *
 * Name:        Send
 *
 * Purpose:     Transmit one message and wait for it to finish.
 *
 * Returns:	ctx.Err() if cancelled.  The hardware has been put
 *		back in that case too.
 *
 * Description:	Polls the channel every PollInterval.  Gives up after
 *		MaxPolls or a little more than the message should take,
 *		whichever is longer.
 *
 *--------------------------------------------------------------------*/

func (t *Transmitter) Send(ctx context.Context, frequency uint32, wpm uint32, message string) (err error) {
	var start = t.now()

	var rec = TransmissionRecord{
		Start:     start,
		Frequency: frequency,
		WPM:       wpm,
		Message:   message,
		Outcome:   OutcomeFailed,
	}

	defer func() {
		rec.Duration = t.now().Sub(start)
		if jerr := t.journal.Record(rec); jerr != nil {
			t.logger.Warn("Failed to write journal", "err", jerr)
		}
	}()

	s, err := t.Prepare(frequency, wpm, message)
	if err != nil {
		return err
	}

	rec.Ticks = s.ticks
	rec.Bits = len(s.bits)
	rec.Blocks = s.dma.Program().Len()

	defer func() {
		err = errors.Join(err, s.Close(), t.hw.PTT.Set(false))
	}()

	t.logger.Info("Transmitting",
		"carrier", fmt.Sprintf("%.3f", s.clock.CarrierFrequency()),
		"wpm", wpm, "bits", len(s.bits), "expected", s.Duration())

	if err := t.hw.PTT.Set(true); err != nil {
		return err
	}

	if err := wait(ctx, t.cfg.TXDelay); err != nil {
		rec.Outcome = OutcomeCancelled

		return err
	}

	if err := s.dma.Start(); err != nil {
		return err
	}

	rec.Outcome = t.poll(ctx, s)

	switch rec.Outcome {
	case OutcomeCancelled:
		return ctx.Err()
	case OutcomeComplete:
		// Let the last element clear the transmitter.
		time.Sleep(t.cfg.TXTail)
	}

	return nil
}

func (t *Transmitter) poll(ctx context.Context, s *Session) string {
	var interval = t.cfg.PollInterval
	var limit = max(t.cfg.MaxPolls, int(s.Duration()/interval)+2)

	for polls := 0; s.dma.IsRunning(); polls++ {
		if polls >= limit {
			t.logger.Warn("DMA still running, giving up", "polls", polls, "state", s.dma.State())

			return OutcomeTimeout
		}

		t.logger.Debug("Waiting for DMA", "poll", polls)

		if err := wait(ctx, interval); err != nil {
			t.logger.Info("Cancelled", "poll", polls)

			return OutcomeCancelled
		}
	}

	return OutcomeComplete
}

// wait sleeps for d unless ctx is done first.
func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d <= 0 {
		return nil
	}

	var timer = time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
