package bridge

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/zenibako/spacemap-qlab/messages"
)

// Config holds the per-session settings. Addresses and scene defaults are
// configurable; all port numbers and timing constants are fixed in the
// messages and correlator packages.
type Config struct {
	DeviceHost  string `mapstructure:"device_host"`
	ConsoleHost string `mapstructure:"console_host"`

	// Passcode for the console /connect handshake. Empty when the
	// workspace has no passcode.
	Passcode string `mapstructure:"passcode"`

	// NetworkPatch is the console network-patch number scene cues fire
	// through.
	NetworkPatch int `mapstructure:"network_patch"`

	// CueDuration is the duration in seconds applied to every scene cue.
	CueDuration float64 `mapstructure:"cue_duration"`

	// DefaultMapping is used by scene capture when no mapping is given.
	DefaultMapping int `mapstructure:"default_mapping"`

	// LogLevel: 0 errors only, 1 adds summaries, 2 adds every message.
	LogLevel int `mapstructure:"log_level"`

	// Objects seeds the position cache at startup.
	Objects []ObjectSeed `mapstructure:"objects"`
}

// ObjectSeed names one tracked object in the config file.
type ObjectSeed struct {
	Number int    `mapstructure:"number"`
	Name   string `mapstructure:"name"`
}

// DefaultConfig returns a config pointed at local endpoints.
func DefaultConfig() Config {
	return Config{
		DeviceHost:     "127.0.0.1",
		ConsoleHost:    "127.0.0.1",
		NetworkPatch:   1,
		CueDuration:    1,
		DefaultMapping: 1,
		LogLevel:       1,
	}
}

// Validate checks bounds on every recognized option.
func (c Config) Validate() error {
	if c.DeviceHost == "" {
		return fmt.Errorf("device_host is required")
	}
	if c.ConsoleHost == "" {
		return fmt.Errorf("console_host is required")
	}
	if !messages.ValidMapping(c.DefaultMapping) {
		return fmt.Errorf("default_mapping %d: %w (must be %d-%d)",
			c.DefaultMapping, ErrOutOfRange, messages.MappingMin, messages.MappingMax)
	}
	if c.NetworkPatch < 1 {
		return fmt.Errorf("network_patch %d: %w (must be >= 1)", c.NetworkPatch, ErrOutOfRange)
	}
	if c.CueDuration < 0 {
		return fmt.Errorf("cue_duration %g: %w (must be >= 0)", c.CueDuration, ErrOutOfRange)
	}
	if c.LogLevel < 0 || c.LogLevel > 2 {
		return fmt.Errorf("log_level %d: %w (must be 0, 1 or 2)", c.LogLevel, ErrOutOfRange)
	}
	for _, obj := range c.Objects {
		if !messages.ValidObject(obj.Number) {
			return fmt.Errorf("object %d: %w (must be %d-%d)",
				obj.Number, ErrOutOfRange, messages.ObjectMin, messages.ObjectMax)
		}
	}
	return nil
}

// LogLevelValue maps the numeric verbosity onto a logger level.
func (c Config) LogLevelValue() log.Level {
	switch c.LogLevel {
	case 0:
		return log.ErrorLevel
	case 2:
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}
