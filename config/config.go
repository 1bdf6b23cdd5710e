// Package config handles ls9.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/dspearson/lisp9/vm"
)

// FileName is the name of the configuration file.
const FileName = "ls9.toml"

// Config represents an ls9.toml file.
type Config struct {
	Memory  Memory  `toml:"memory"`
	Runtime Runtime `toml:"runtime"`
	Image   Image   `toml:"image"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the ls9.toml file (set at load time).
	Dir string `toml:"-"`
}

// Memory sets the pool capacities.
type Memory struct {
	Nodes  int `toml:"nodes"`
	VCells int `toml:"vcells"`
}

// Runtime sets the interpreter limits.
type Runtime struct {
	Ports       int `toml:"ports"`
	Trace       int `toml:"trace"`
	PrintDepth  int `toml:"print-depth"`
	TokenLength int `toml:"token-length"`
	MacroDepth  int `toml:"macro-depth"`
	MaxFrames   int `toml:"max-frames"`
	MaxStack    int `toml:"max-stack"`
}

// Image configures image and bootstrap source locations.
type Image struct {
	File   string `toml:"file"`
	Source string `toml:"source"`
	Store  string `toml:"store"`
}

// Log configures diagnostics.
type Log struct {
	Verbosity int  `toml:"verbosity"`
	GCVerbose bool `toml:"gc-verbose"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := vm.DefaultConfig()
	return &Config{
		Memory: Memory{Nodes: d.Nodes, VCells: d.VCells},
		Runtime: Runtime{
			Ports:       d.Ports,
			Trace:       d.Trace,
			PrintDepth:  d.PrintDepth,
			TokenLength: d.TokenLength,
			MacroDepth:  d.MacroDepth,
			MaxFrames:   d.MaxFrames,
			MaxStack:    d.MaxStack,
		},
		Image: Image{File: "ls9.image", Source: "ls9.ls9"},
	}
}

// Parse decodes TOML data over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an ls9.toml file, then loads
// and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate rejects capacities the machine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Memory.Nodes < 1024:
		return fmt.Errorf("memory.nodes must be at least 1024, got %d", c.Memory.Nodes)
	case c.Memory.VCells < 1024:
		return fmt.Errorf("memory.vcells must be at least 1024, got %d", c.Memory.VCells)
	case c.Runtime.Ports < 3:
		return fmt.Errorf("runtime.ports must be at least 3, got %d", c.Runtime.Ports)
	case c.Runtime.Trace < 1:
		return fmt.Errorf("runtime.trace must be positive, got %d", c.Runtime.Trace)
	}
	return nil
}

// Path resolves a file name from the configuration relative to the
// directory the configuration was loaded from.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || c.Dir == "" {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// VM returns the machine configuration. The console streams are left
// unset and default to the process's standard streams.
func (c *Config) VM() vm.Config {
	return vm.Config{
		Nodes:       c.Memory.Nodes,
		VCells:      c.Memory.VCells,
		Ports:       c.Runtime.Ports,
		Trace:       c.Runtime.Trace,
		PrintDepth:  c.Runtime.PrintDepth,
		TokenLength: c.Runtime.TokenLength,
		MacroDepth:  c.Runtime.MacroDepth,
		MaxFrames:   c.Runtime.MaxFrames,
		MaxStack:    c.Runtime.MaxStack,
		GCVerbose:   c.Log.GCVerbose,
	}
}
