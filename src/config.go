package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Read configuration for the transmitter.
 *
 * Description:	Everything has a sensible default so the file is
 *		optional.  Command line options override the file.
 *
 *		Example:
 *
 *			pin: 4
 *			pin_function: alt0
 *			dma_channel: 5
 *			poll_interval: 1s
 *			max_polls: 120
 *			txdelay: 300ms
 *			txtail: 100ms
 *			ptt:
 *			  method: gpiod
 *			  device: gpiochip0
 *			  line: 17
 *			log_dir: /var/log/rfmorse
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// GPIO pin the carrier comes out on, and the function select code
	// that connects GPCLK0 to it.  GPIO4 ALT0 is pin 7 on the header.
	Pin         uint32 `yaml:"pin"`
	PinFunction string `yaml:"pin_function"`

	DMAChannel uint32 `yaml:"dma_channel"`

	// 0 means read it from the device tree.
	PeripheralBase uint32 `yaml:"peripheral_base"`

	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
	KillAttempts int           `yaml:"kill_attempts"`
	LockSettle   time.Duration `yaml:"lock_settle"`

	TXDelay time.Duration `yaml:"txdelay"`
	TXTail  time.Duration `yaml:"txtail"`

	PTT PTTConfig `yaml:"ptt"`

	// Daily transmission logs are written here.  Empty disables them.
	LogDir string `yaml:"log_dir"`

	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Pin:          4,
		PinFunction:  "alt0",
		DMAChannel:   5,
		PollInterval: time.Second,
		MaxPolls:     120,
		KillAttempts: 10000,
		LockSettle:   time.Second,
		PTT:          PTTConfig{Method: PTT_METHOD_NONE},
		LogLevel:     "info",
	}
}

// LoadConfig reads a yaml configuration file over the defaults.
// An empty path gives the defaults.
func LoadConfig(path string) (Config, error) {
	var cfg = DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data, err = os.ReadFile(path) //nolint:gosec
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	var dec = yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

var pinFunctions = map[string]uint32{
	"alt0": GPIO_FSEL_ALT0,
	"alt1": GPIO_FSEL_ALT1,
	"alt2": GPIO_FSEL_ALT2,
	"alt3": GPIO_FSEL_ALT3,
	"alt4": GPIO_FSEL_ALT4,
	"alt5": GPIO_FSEL_ALT5,
}

// PinFunctionCode is the GPFSEL code for PinFunction.
func (c Config) PinFunctionCode() (uint32, error) {
	var code, ok = pinFunctions[strings.ToLower(c.PinFunction)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown pin function %q", ErrInvalidPin, c.PinFunction)
	}

	return code, nil
}

func (c Config) Validate() error {
	if c.Pin > GPIO_PIN_MAX {
		return fmt.Errorf("%w: %d", ErrInvalidPin, c.Pin)
	}

	if _, err := c.PinFunctionCode(); err != nil {
		return err
	}

	if c.DMAChannel > DMA_CHANNEL_MAXIMUM {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, c.DMAChannel)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}

	if c.MaxPolls <= 0 {
		return fmt.Errorf("max_polls must be positive, got %d", c.MaxPolls)
	}

	if c.TXDelay < 0 || c.TXTail < 0 {
		return errors.New("txdelay and txtail can't be negative")
	}

	return nil
}

// Timing is the register sequencing configuration.
func (c Config) Timing() Timing {
	var t = DefaultTiming()

	t.KillAttempts = c.KillAttempts
	t.LockSettle = c.LockSettle

	return t
}
