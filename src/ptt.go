package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Activate an output control line for push to talk (PTT)
 *		while the carrier is being keyed.
 *
 * Description:	A GPIO pin has no business on an antenna by itself; in
 *		practice it drives a filter and amplifier which may need
 *		to be switched on, or a relay changed over, first.
 *
 *		Traditionally this is done with the RTS or DTR signal of
 *		a serial port.  On a Pi a spare GPIO line through the
 *		character device (gpiod) is more convenient.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"
	"github.com/warthog618/go-gpiocdev"
)

type PTTMethod string

const (
	PTT_METHOD_NONE   PTTMethod = "none"
	PTT_METHOD_GPIOD  PTTMethod = "gpiod"
	PTT_METHOD_SERIAL PTTMethod = "serial"
)

type PTTLine string

const (
	PTT_LINE_RTS PTTLine = "rts"
	PTT_LINE_DTR PTTLine = "dtr"
)

// PTTConfig selects how PTT is driven.
type PTTConfig struct {
	Method PTTMethod `yaml:"method"`

	// gpiod: chip name such as gpiochip0.  serial: tty such as /dev/ttyUSB0.
	Device string `yaml:"device"`

	// gpiod line offset.
	Line int `yaml:"line"`

	// Serial control line.
	Signal PTTLine `yaml:"signal"`

	Invert bool `yaml:"invert"`
}

/*-------------------------------------------------------------------
 *
 * Name:        ParsePTT
 *
 * Purpose:     Parse the command line form of a PTT setting.
 *
 * Inputs:	s	- One of:
 *
 *			  none
 *			  gpiod:CHIP:LINE	e.g. gpiod:gpiochip0:17
 *			  serial:DEVICE[:rts|dtr]	e.g. serial:/dev/ttyUSB0:dtr
 *
 *			  A leading "-" on the last field inverts it,
 *			  e.g. gpiod:gpiochip0:-17.
 *
 *--------------------------------------------------------------------*/

func ParsePTT(s string) (PTTConfig, error) {
	var fields = strings.Split(s, ":")
	var cfg = PTTConfig{Method: PTTMethod(strings.ToLower(fields[0]))}

	var last = &fields[len(fields)-1]
	if len(fields) > 1 && strings.HasPrefix(*last, "-") {
		cfg.Invert = true
		*last = strings.TrimPrefix(*last, "-")
	}

	switch cfg.Method {
	case PTT_METHOD_NONE:
		if len(fields) != 1 {
			return cfg, fmt.Errorf("PTT none takes no arguments: %q", s)
		}

	case PTT_METHOD_GPIOD:
		if len(fields) != 3 {
			return cfg, fmt.Errorf("PTT gpiod wants gpiod:CHIP:LINE, got %q", s)
		}

		var line, err = strconv.Atoi(fields[2])
		if err != nil || line < 0 {
			return cfg, fmt.Errorf("PTT gpiod line %q is not a line number", fields[2])
		}

		cfg.Device = fields[1]
		cfg.Line = line

	case PTT_METHOD_SERIAL:
		switch len(fields) {
		case 2:
			cfg.Signal = PTT_LINE_RTS
		case 3:
			cfg.Signal = PTTLine(strings.ToLower(fields[2]))
			if cfg.Signal != PTT_LINE_RTS && cfg.Signal != PTT_LINE_DTR {
				return cfg, fmt.Errorf("PTT serial signal must be rts or dtr, got %q", fields[2])
			}
		default:
			return cfg, fmt.Errorf("PTT serial wants serial:DEVICE[:rts|dtr], got %q", s)
		}

		cfg.Device = fields[1]

	default:
		return cfg, fmt.Errorf("unknown PTT method %q", fields[0])
	}

	return cfg, nil
}

// PTT is an output line asserted for the duration of a transmission.
type PTT interface {
	Set(on bool) error
	Close() error
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenPTT
 *
 * Purpose:     Open the configured PTT line, initially off.
 *
 *--------------------------------------------------------------------*/

func OpenPTT(cfg PTTConfig, logger *log.Logger) (PTT, error) {
	switch PTTMethod(strings.ToLower(string(cfg.Method))) {
	case "", PTT_METHOD_NONE:
		return nopPTT{}, nil

	case PTT_METHOD_GPIOD:
		var line, err = gpiocdev.RequestLine(cfg.Device, cfg.Line,
			gpiocdev.AsOutput(level(false, cfg.Invert)),
			gpiocdev.WithConsumer("rfmorse"))
		if err != nil {
			return nil, fmt.Errorf("%w: PTT %s line %d: %w", ErrHardwareAccess, cfg.Device, cfg.Line, err)
		}

		logger.Debug("PTT gpiod", "chip", cfg.Device, "line", cfg.Line)

		return &gpiodPTT{line: line, invert: cfg.Invert, logger: logger}, nil

	case PTT_METHOD_SERIAL:
		var t, err = term.Open(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("%w: PTT %s: %w", ErrHardwareAccess, cfg.Device, err)
		}

		var p = &serialPTT{t: t, signal: cfg.Signal, invert: cfg.Invert, logger: logger}
		if p.signal == "" {
			p.signal = PTT_LINE_RTS
		}

		if err := p.Set(false); err != nil {
			t.Close() //nolint:gosec

			return nil, err
		}

		logger.Debug("PTT serial", "device", cfg.Device, "signal", p.signal)

		return p, nil

	default:
		return nil, fmt.Errorf("unknown PTT method %q", cfg.Method)
	}
}

func level(on bool, invert bool) int {
	if on != invert {
		return 1
	}

	return 0
}

type nopPTT struct{}

func (nopPTT) Set(bool) error { return nil }
func (nopPTT) Close() error { return nil }

// gpiodOutputLine is the part of *gpiocdev.Line we use.
type gpiodOutputLine interface {
	SetValue(v int) error
	Close() error
}

type gpiodPTT struct {
	line   gpiodOutputLine
	invert bool
	logger *log.Logger
}

func (p *gpiodPTT) Set(on bool) error {
	p.logger.Debug("PTT", "on", on)

	if err := p.line.SetValue(level(on, p.invert)); err != nil {
		return fmt.Errorf("%w: setting PTT: %w", ErrHardwareAccess, err)
	}

	return nil
}

func (p *gpiodPTT) Close() error {
	p.line.SetValue(level(false, p.invert)) //nolint:errcheck

	return p.line.Close()
}

type serialPTT struct {
	t      *term.Term
	signal PTTLine
	invert bool
	logger *log.Logger
}

func (p *serialPTT) Set(on bool) error {
	p.logger.Debug("PTT", "on", on, "signal", p.signal)

	var v = level(on, p.invert) == 1

	var err error

	switch p.signal {
	case PTT_LINE_DTR:
		err = p.t.SetDTR(v)
	default:
		err = p.t.SetRTS(v)
	}

	if err != nil {
		return fmt.Errorf("%w: setting PTT %s: %w", ErrHardwareAccess, p.signal, err)
	}

	return nil
}

func (p *serialPTT) Close() error {
	p.Set(false) //nolint:errcheck

	return p.t.Close()
}
