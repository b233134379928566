// Package config handles ferry.toml interpreter configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/ferry/str"
	"github.com/chazu/ferry/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "ferry.toml"

// Default limits.
const (
	DefaultGCStep    = 1024
	DefaultVerbosity = 0
)

// Config represents a ferry.toml file.
type Config struct {
	Heap   Heap   `toml:"heap"`
	String String `toml:"string"`
	Log    Log    `toml:"log"`

	// Path is the file the configuration was read from (set at load
	// time, empty for defaults).
	Path string `toml:"-"`
}

// Heap configures the interpreter heap and collector.
type Heap struct {
	// MaxSlots caps live heap slots; 0 means unlimited.
	MaxSlots int `toml:"max-slots"`
	// GCStep collects every GCStep allocations; 0 disables stepping.
	GCStep int `toml:"gc-step"`
}

// String configures the string engine.
type String struct {
	// MaxCapacity caps a single string buffer in bytes; 0 keeps the
	// engine's ceiling. Defaults to str.MaxCapacity.
	MaxCapacity int `toml:"max-capacity"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Heap:   Heap{GCStep: DefaultGCStep},
		String: String{MaxCapacity: str.MaxCapacity},
		Log:    Log{Verbosity: DefaultVerbosity},
	}
}

// Load parses ferry.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path. Keys missing from the
// file keep their defaults; unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a ferry.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate reports settings the interpreter cannot honor.
func (c *Config) Validate() error {
	var errs []error
	if c.Heap.MaxSlots < 0 {
		errs = append(errs, fmt.Errorf("heap.max-slots must not be negative (got %d)", c.Heap.MaxSlots))
	}
	if c.Heap.GCStep < 0 {
		errs = append(errs, fmt.Errorf("heap.gc-step must not be negative (got %d)", c.Heap.GCStep))
	}
	if c.String.MaxCapacity < 0 {
		errs = append(errs, fmt.Errorf("string.max-capacity must not be negative (got %d)", c.String.MaxCapacity))
	}
	if c.String.MaxCapacity > str.MaxCapacity {
		errs = append(errs, fmt.Errorf("string.max-capacity must not exceed %d (got %d)", str.MaxCapacity, c.String.MaxCapacity))
	}
	return errors.Join(errs...)
}

// VMOptions converts the configuration into interpreter options.
func (c *Config) VMOptions() (vm.Options, error) {
	if err := c.Validate(); err != nil {
		return vm.Options{}, err
	}
	return vm.Options{
		MaxSlots:          c.Heap.MaxSlots,
		GCStep:            c.Heap.GCStep,
		MaxStringCapacity: c.String.MaxCapacity,
	}, nil
}
