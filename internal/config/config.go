// Package config loads the splgraph YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/launchnoise/geodesy"
)

var (
	ErrUnknownPad = errors.New("config: unknown pad")
	ErrInvalid    = errors.New("config: invalid value")
)

// Pad is a named launch position.
type Pad struct {
	Name        string  `yaml:"-"`
	Description string  `yaml:"description,omitempty"`
	Lat         float64 `yaml:"lat"`
	Lon         float64 `yaml:"lon"`
}

// Coordinate returns the pad position.
func (p Pad) Coordinate() geodesy.Coordinate {
	return geodesy.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// Log selects the logger level and encoding.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Analysis holds pipeline settings.
type Analysis struct {
	Workers      int     `yaml:"workers"`
	SmoothWindow int     `yaml:"smooth_window"`
	Extension    string  `yaml:"extension"`
	ThresholdDBA float64 `yaml:"threshold_dba"`
}

// Output holds report settings.
type Output struct {
	Dir string `yaml:"dir"`
}

// Config is the complete configuration.
type Config struct {
	Log      Log            `yaml:"log"`
	Pads     map[string]Pad `yaml:"pads"`
	Analysis Analysis       `yaml:"analysis"`
	Output   Output         `yaml:"output"`
}

// BuiltinPads are always available; entries in a config file with the same
// name replace them.
var BuiltinPads = map[string]Pad{
	"marspad-0a": {Description: "MARS Pad 0A, Wallops", Lat: 37.833879, Lon: -75.487709},
	"slc-37b":    {Description: "SLC-37B, Cape Canaveral", Lat: 28.531986, Lon: -80.566821},
	"slc-40":     {Description: "SLC-40, Cape Canaveral", Lat: 28.562106, Lon: -80.57718},
	"lc-39a":     {Description: "LC-39A, Kennedy Space Center", Lat: 28.608333, Lon: -80.604444},
}

// Default returns the configuration used when no file is given.
func Default() Config {
	pads := make(map[string]Pad, len(BuiltinPads))
	for k, v := range BuiltinPads {
		pads[k] = v
	}
	return Config{
		Log:      Log{Level: "info", Format: "console"},
		Pads:     pads,
		Analysis: Analysis{Extension: ".csv", ThresholdDBA: 100},
		Output:   Output{Dir: "out"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.merge(data); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.merge(data); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) merge(data []byte) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Log.Level != "" {
		c.Log.Level = file.Log.Level
	}
	if file.Log.Format != "" {
		c.Log.Format = file.Log.Format
	}
	for name, p := range file.Pads {
		c.Pads[strings.ToLower(name)] = p
	}
	if file.Analysis.Workers != 0 {
		c.Analysis.Workers = file.Analysis.Workers
	}
	if file.Analysis.SmoothWindow != 0 {
		c.Analysis.SmoothWindow = file.Analysis.SmoothWindow
	}
	if file.Analysis.Extension != "" {
		c.Analysis.Extension = file.Analysis.Extension
	}
	if file.Analysis.ThresholdDBA != 0 {
		c.Analysis.ThresholdDBA = file.Analysis.ThresholdDBA
	}
	if file.Output.Dir != "" {
		c.Output.Dir = file.Output.Dir
	}
	return nil
}

// Validate checks value ranges and pad coordinates.
func (c Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("%w: analysis.workers %d", ErrInvalid, c.Analysis.Workers)
	}
	if c.Analysis.SmoothWindow < 0 {
		return fmt.Errorf("%w: analysis.smooth_window %d", ErrInvalid, c.Analysis.SmoothWindow)
	}
	for name, p := range c.Pads {
		if err := p.Coordinate().Validate(); err != nil {
			return fmt.Errorf("%w: pad %s: %w", ErrInvalid, name, err)
		}
	}
	return nil
}

// Pad looks a pad up by case-insensitive name.
func (c Config) Pad(name string) (Pad, error) {
	p, ok := c.Pads[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Pad{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPad, name, strings.Join(c.PadNames(), ", "))
	}
	p.Name = strings.ToLower(strings.TrimSpace(name))
	return p, nil
}

// PadNames returns the known pad names, sorted.
func (c Config) PadNames() []string {
	names := make([]string, 0, len(c.Pads))
	for k := range c.Pads {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
