/* Send a message in Morse code on a Raspberry Pi GPIO pin */
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	rfmorse "github.com/doismellburning/rfmorse/src"
	"github.com/spf13/pflag"
)

func main() {
	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var code = run(ctx, os.Args, os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}

/*-------------------------------------------------------------------
 *
 * Name:        run
 *
 * Purpose:     Everything main does, short of exiting.
 *
 * Returns:	Process exit status.
 *
 * Description:	Problems that don't need the hardware are found before
 *		it is opened, so they can be reported without root.
 *
 *--------------------------------------------------------------------*/

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	var flags = pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var configPath = flags.StringP("config", "c", "", "YAML configuration file.")
	var pin = flags.Uint32P("pin", "p", 4, "GPIO pin for the carrier.  GPIO4 is header pin 7.")
	var dmaChannel = flags.Uint32P("dma-channel", "d", 5, "DMA channel, 0 to 14.  Choose one the kernel isn't using.")
	var ptt = flags.StringP("ptt", "P", "none", `Push to talk line:
none
gpiod:CHIP:LINE           e.g. gpiod:gpiochip0:17
serial:DEVICE[:rts|dtr]   e.g. serial:/dev/ttyUSB0:dtr
Prefix the last field with - to invert.`)
	var logDir = flags.StringP("log-dir", "l", "", "Directory for daily transmission logs.")
	var verbose = flags.BoolP("verbose", "v", false, "Show register values and the DMA program.")
	var quiet = flags.BoolP("quiet", "q", false, "Only show warnings and errors.")
	var version = flags.BoolP("version", "V", false, "Print version and exit.")
	var help = flags.BoolP("help", "h", false, "Display help text.")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "%s - Send a message in Morse code as RF from a GPIO pin.\n", args[0])
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "Usage: %s [OPTIONS] FREQUENCY WPM MESSAGE...\n", args[0])
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "FREQUENCY is the carrier in Hz, WPM the keying rate in words per minute.\n")
		fmt.Fprintf(stderr, "Must be run as root.  A license is required to transmit.  Use a filter.\n")
		fmt.Fprintf(stderr, "\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "Example:\n")
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "$ sudo %s 7030000 12 \"CQ CQ DE G4ABC K\"\n", args[0])
	}

	if err := flags.Parse(args[1:]); err != nil {
		return rfmorse.ExitUsage
	}

	if *help {
		flags.Usage()
		return rfmorse.ExitOK
	}

	if *version {
		rfmorse.PrintVersion(stdout, "rfmorse", *verbose)
		return rfmorse.ExitOK
	}

	if flags.NArg() < 3 {
		fmt.Fprintf(stderr, "Frequency, rate and message required - got %s\n", flags.Args())
		flags.Usage()

		return rfmorse.ExitUsage
	}

	var frequency, freqErr = strconv.ParseUint(flags.Arg(0), 10, 32)
	if freqErr != nil {
		fmt.Fprintf(stderr, "Frequency %q is not a whole number of Hz\n", flags.Arg(0))
		return rfmorse.ExitUsage
	}

	var wpm, wpmErr = strconv.ParseUint(flags.Arg(1), 10, 32)
	if wpmErr != nil {
		fmt.Fprintf(stderr, "Rate %q is not a whole number of words per minute\n", flags.Arg(1))
		return rfmorse.ExitUsage
	}

	var message = strings.Join(flags.Args()[2:], " ")

	var cfg, cfgErr = rfmorse.LoadConfig(*configPath)
	if cfgErr != nil {
		fmt.Fprintf(stderr, "%s\n", cfgErr)
		return rfmorse.ExitUsage
	}

	// Command line beats the file.
	if flags.Changed("pin") {
		cfg.Pin = *pin
	}

	if flags.Changed("dma-channel") {
		cfg.DMAChannel = *dmaChannel
	}

	if flags.Changed("ptt") {
		var p, err = rfmorse.ParsePTT(*ptt)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return rfmorse.ExitUsage
		}

		cfg.PTT = p
	}

	if flags.Changed("log-dir") {
		cfg.LogDir = *logDir
	}

	switch {
	case *verbose:
		cfg.LogLevel = "debug"
	case *quiet:
		cfg.LogLevel = "warn"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return rfmorse.ExitUsage
	}

	var logger, logErr = rfmorse.NewLogger(stderr, cfg.LogLevel)
	if logErr != nil {
		fmt.Fprintf(stderr, "log_level: %s\n", logErr)
		return rfmorse.ExitUsage
	}

	if err := check(uint32(frequency), uint32(wpm), message); err != nil {
		logger.Error("Can't send that", "err", err)
		return rfmorse.ExitCode(err)
	}

	var journal, journalErr = rfmorse.OpenJournal(cfg.LogDir, logger)
	if journalErr != nil {
		logger.Error("Can't open transmission log", "err", journalErr)
		return rfmorse.ExitUsage
	}

	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn("Closing transmission log", "err", err)
		}
	}()

	var hw, hwErr = rfmorse.OpenHardware(cfg, logger)
	if hwErr != nil {
		logger.Error("Can't open hardware", "err", hwErr)
		return rfmorse.ExitCode(hwErr)
	}

	defer func() {
		if err := hw.Close(); err != nil {
			logger.Warn("Closing hardware", "err", err)
		}
	}()

	var tx = rfmorse.NewTransmitter(hw, cfg, journal, logger)

	var err = tx.Send(ctx, uint32(frequency), uint32(wpm), message)

	switch {
	case err == nil:
		logger.Info("Done")
	case errors.Is(err, context.Canceled):
		logger.Info("Interrupted")
	default:
		logger.Error("Transmission failed", "err", err)
	}

	return rfmorse.ExitCode(err)
}

// check finds what can be found wrong without the hardware.
func check(frequency uint32, wpm uint32, message string) error {
	if _, err := rfmorse.EncodedLength(message); err != nil {
		return err
	}

	if wpm == 0 || rfmorse.TicksPerUnit(wpm) == 0 {
		return fmt.Errorf("%w: %d WPM", rfmorse.ErrInvalidRate, wpm)
	}

	if _, err := rfmorse.FindPLLDivider(frequency); err != nil {
		return err
	}

	return nil
}
