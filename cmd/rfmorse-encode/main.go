/* Show what rfmorse would do with a message, without any hardware */
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	rfmorse "github.com/doismellburning/rfmorse/src"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	var flags = pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var pin = flags.Uint32P("pin", "p", 4, "GPIO pin for the carrier.")
	var blocks = flags.BoolP("blocks", "b", false, "List the DMA control blocks as well.")
	var verbose = flags.BoolP("verbose", "v", false, "Log every register write.")
	var help = flags.BoolP("help", "h", false, "Display help text.")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "%s - Show the keying and clock settings rfmorse would use.\n", args[0])
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "Usage: %s [OPTIONS] FREQUENCY WPM MESSAGE...\n", args[0])
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "No hardware is touched.  PLLD is assumed to run at 500 MHz.\n")
		fmt.Fprintf(stderr, "\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args[1:]); err != nil {
		return rfmorse.ExitUsage
	}

	if *help {
		flags.Usage()
		return rfmorse.ExitOK
	}

	if flags.NArg() < 3 {
		flags.Usage()
		return rfmorse.ExitUsage
	}

	var frequency, freqErr = strconv.ParseUint(flags.Arg(0), 10, 32)
	var wpm, wpmErr = strconv.ParseUint(flags.Arg(1), 10, 32)

	if freqErr != nil || wpmErr != nil {
		fmt.Fprintf(stderr, "Frequency and rate must be whole numbers - got %s %s\n", flags.Arg(0), flags.Arg(1))
		return rfmorse.ExitUsage
	}

	var message = strings.Join(flags.Args()[2:], " ")

	var level = "error"
	if *verbose {
		level = "debug"
	}

	var logger, _ = rfmorse.NewLogger(stderr, level)

	var cfg = rfmorse.DefaultConfig()
	cfg.Pin = *pin
	cfg.LockSettle = 0 // Nothing to lock.

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return rfmorse.ExitUsage
	}

	var tx = rfmorse.NewTransmitter(rfmorse.FakeHardware(), cfg, nil, logger)

	var s, err = tx.Prepare(uint32(frequency), uint32(wpm), message)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return rfmorse.ExitCode(err)
	}

	defer s.Close() //nolint:errcheck

	var pllc = s.Clock().PLLC()
	var program = s.DMA().Program()

	fmt.Fprintf(stdout, "Message:      %s\n", message)
	fmt.Fprintf(stdout, "Bits:         %s\n", rfmorse.BitString(s.Bits()))
	fmt.Fprintf(stdout, "Sub-symbols:  %d\n", len(s.Bits()))
	fmt.Fprintf(stdout, "Duration:     %s at %d WPM\n", rfmorse.UnitsDuration(len(s.Bits()), int(wpm)), wpm)
	fmt.Fprintf(stdout, "GP0 divider:  %d\n", s.Clock().Divider())
	fmt.Fprintf(stdout, "PLLC:         %d + %d/2^20\n", pllc.Integer, pllc.Fraction)
	fmt.Fprintf(stdout, "Carrier:      %.1f Hz\n", s.Clock().CarrierFrequency())
	fmt.Fprintf(stdout, "PCM prediv:   %d\n", s.Timebase().PreDivider())
	fmt.Fprintf(stdout, "Ticks/bit:    %d\n", s.TicksPerSubSymbol())
	fmt.Fprintf(stdout, "Blocks:       %d\n", program.Len())

	if *blocks {
		fmt.Fprintf(stdout, "\n%5s  %-8s  %-8s  %-8s  %-8s  %-8s\n", "#", "addr", "txinfo", "src", "dest", "next")

		for i, cb := range program.Blocks() {
			fmt.Fprintf(stdout, "%5d  %08X  %08X  %08X  %08X  %08X\n", i, program.BlockBusAddress(i), cb.TransferInfo, cb.Source, cb.Destination, cb.Next)
		}
	}

	return rfmorse.ExitOK
}
