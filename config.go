package barbatos

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/pca9685"
	"libdb.so/barbatos/internal/serialsink"
	"libdb.so/barbatos/internal/thruster"
)

// Config is the configuration for the barbatos daemon.
type Config struct {
	// Listen is the address the control page is served on.
	Listen string `toml:"listen"`
	// Title is shown on the control page.
	Title string `toml:"title"`
	// PWM configures the PWM controller the LEDs are wired to.
	PWM PWMConfig `toml:"pwm"`
	// Thruster configures the thruster colour rotation.
	Thruster ThrusterConfig `toml:"thruster"`
	// Channels optionally overrides the physical output of named channels,
	// e.g. head = 15. Unlisted channels keep outputs 0 through 8.
	Channels map[string]int `toml:"channels"`
}

// PWMDriver selects the PWM sink implementation.
type PWMDriver string

const (
	// PCA9685Driver talks to a PCA9685 directly over I2C.
	PCA9685Driver PWMDriver = "pca9685"
	// SerialDriver talks to the PWM bridge firmware over a serial port.
	SerialDriver PWMDriver = "serial"
	// NoopDriver only logs writes. Useful without hardware.
	NoopDriver PWMDriver = "noop"
)

// PWMConfig is the configuration for the PWM sink.
type PWMConfig struct {
	Driver PWMDriver `toml:"driver"`
	// Frequency is the PWM frequency in Hz.
	Frequency int `toml:"frequency"`

	// I2CDevice is the I2C bus device file, usually /dev/i2c-1.
	I2CDevice string `toml:"i2c_device"`
	// Address is the I2C address of the PCA9685.
	Address int `toml:"address"`

	// SerialDevice is the path to the bridge's serial port, usually
	// /dev/ttyACM0.
	SerialDevice string `toml:"serial_device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
}

// ThrusterConfig is the configuration for the thruster.
type ThrusterConfig struct {
	// ColorDuration is how long each palette plays before rotating.
	ColorDuration TOMLDuration `toml:"color_duration"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Title == "" {
		c.Title = "MG Barbatos LED Control"
	}
	if c.PWM.Driver == "" {
		c.PWM.Driver = PCA9685Driver
	}
	if c.PWM.Frequency == 0 {
		c.PWM.Frequency = 1500
	}
	if c.PWM.I2CDevice == "" {
		c.PWM.I2CDevice = "/dev/i2c-1"
	}
	if c.PWM.Address == 0 {
		c.PWM.Address = pca9685.DefaultAddress
	}
	if c.PWM.SerialDevice == "" {
		c.PWM.SerialDevice = "/dev/ttyACM0"
	}
	if c.PWM.Baud == 0 {
		c.PWM.Baud = 115200
	}
	if c.Thruster.ColorDuration == 0 {
		c.Thruster.ColorDuration = TOMLDuration(thruster.DefaultColorDuration)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.PWM.Driver {
	case PCA9685Driver:
		if c.PWM.Address < 0x03 || c.PWM.Address > 0x77 {
			return fmt.Errorf("i2c address %#x out of range", c.PWM.Address)
		}
	case SerialDriver:
		if c.PWM.Baud <= 0 {
			return fmt.Errorf("invalid baud rate %d", c.PWM.Baud)
		}
	case NoopDriver:
	default:
		return fmt.Errorf("unknown pwm driver %q", c.PWM.Driver)
	}

	if c.PWM.Frequency <= 0 || c.PWM.Frequency > 0xFFFF {
		return fmt.Errorf("invalid pwm frequency %d", c.PWM.Frequency)
	}

	if c.Thruster.ColorDuration <= 0 {
		return errors.New("thruster color duration must be positive")
	}

	mapping, err := c.Mapping()
	if err != nil {
		return err
	}
	outputs := pca9685.NumOutputs
	if c.PWM.Driver == SerialDriver {
		outputs = serialsink.MaxOutputs
	}
	if err := mapping.Validate(outputs); err != nil {
		return errors.Wrap(err, "invalid channel mapping")
	}

	return nil
}

// Mapping returns the channel to output mapping with overrides applied.
func (c *Config) Mapping() (led.Mapping, error) {
	return led.DefaultMapping().WithOverrides(c.Channels)
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Missing fields take their
// default values.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}
	config.setDefaults()
	return &config, nil
}
