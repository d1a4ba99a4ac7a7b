package tracelet

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/vmjit/hhir/internal/jit/translator"
)

// ErrConfig is returned for an options file that does not decode into Config.
var ErrConfig = errors.New("invalid configuration")

// Config is the content of an options file.
type Config struct {
	Translator TranslatorConfig `toml:"translator"`
	Log        LogConfig        `toml:"log"`
}

// TranslatorConfig maps onto translator.Options. Absent keys keep their defaults.
type TranslatorConfig struct {
	UnboxPtrs          *bool `toml:"unbox_ptrs"`
	InterpOne          *bool `toml:"interp_one"`
	ValidateStackDepth *bool `toml:"validate_stack_depth"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Verbosity follows commonlog: 0 logs notices and above, 1 info, 2 debug.
	Verbosity int `toml:"verbosity"`
	// Path is the log file, stderr if empty.
	Path string `toml:"path"`
}

// Options returns the translator options of c.
func (c *Config) Options() translator.Options {
	opts := translator.DefaultOptions()
	if v := c.Translator.UnboxPtrs; v != nil {
		opts.UnboxPtrs = *v
	}
	if v := c.Translator.InterpOne; v != nil {
		opts.InterpOneEnabled = *v
	}
	if v := c.Translator.ValidateStackDepth; v != nil {
		opts.ValidateStackDepth = *v
	}
	return opts
}

// LoadConfig reads the options file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig decodes an options file. path is only used in errors.
func ParseConfig(data []byte, path string) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q: %w", path, undecoded[0].String(), ErrConfig)
	}

	// Defaults
	if c.Log.Verbosity < -4 {
		c.Log.Verbosity = -4
	}
	return &c, nil
}
