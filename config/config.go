// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
// Keys match the JSON config files of earlier releases, so a config.json
// loads unchanged (YAML is a superset of JSON).
type Config struct {
	Width      int         `yaml:"width"`  // Trail map width in texels
	Height     int         `yaml:"height"` // Trail map height in texels
	NumAgents  int         `yaml:"num_agents"`
	RandomSeed uint64      `yaml:"random_seed"`
	World      WorldConfig `yaml:"world"`
	Agent      AgentConfig `yaml:"agent"`

	Screen    ScreenConfig    `yaml:"screen"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds trail map update parameters.
type WorldConfig struct {
	DecayRate     float64 `yaml:"decay_rate"`     // Subtracted from every texel per frame, normalized units
	DiffuseRadius int     `yaml:"diffuse_radius"` // Box blur radius in texels (0 = no diffusion)
}

// AgentConfig holds agent behaviour parameters.
type AgentConfig struct {
	Speed          float64 `yaml:"speed"`           // NDC units per second
	TurningSpeed   float64 `yaml:"turning_speed"`   // Radians per second at full turn
	SensorDistance float64 `yaml:"sensor_distance"` // NDC units ahead of the agent
	SensorAngle    float64 `yaml:"sensor_angle"`    // Degrees between the forward and side sensors
	SensorRadius   int     `yaml:"sensor_radius"`   // Texel radius of each sensor window
	DrawScale      float64 `yaml:"draw_scale"`      // Agent glyph scale (0 = agents not drawn)
}

// ScreenConfig holds display settings for the windowed drivers.
type ScreenConfig struct {
	Width     int `yaml:"width"`  // 0 = trail map width
	Height    int `yaml:"height"` // 0 = trail map height
	TargetFPS int `yaml:"target_fps"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int  `yaml:"stats_window"`          // Frames between field stats samples
	PerfCollectorWindow int  `yaml:"perf_collector_window"` // Frames averaged by the perf collector
	BookmarkHistory     int  `yaml:"bookmark_history"`      // Stats windows kept by the bookmark detector
	SnapshotOnBookmark  bool `yaml:"snapshot_on_bookmark"`  // Save agents and trail map when a bookmark fires
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	ScreenW int32
	ScreenH int32
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns a fresh copy of the embedded defaults.
func Defaults() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML or JSON file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks the constraints the simulation core relies on.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: trail map size %dx%d must be positive", ErrInvalid, c.Width, c.Height)
	case c.NumAgents < 0:
		return fmt.Errorf("%w: num_agents %d is negative", ErrInvalid, c.NumAgents)
	case c.World.DecayRate < 0:
		return fmt.Errorf("%w: world.decay_rate %g is negative", ErrInvalid, c.World.DecayRate)
	case c.World.DiffuseRadius < 0:
		return fmt.Errorf("%w: world.diffuse_radius %d is negative", ErrInvalid, c.World.DiffuseRadius)
	case c.Agent.SensorRadius < 0:
		return fmt.Errorf("%w: agent.sensor_radius %d is negative", ErrInvalid, c.Agent.SensorRadius)
	case c.Agent.DrawScale < 0:
		return fmt.Errorf("%w: agent.draw_scale %g is negative", ErrInvalid, c.Agent.DrawScale)
	case c.Screen.Width < 0 || c.Screen.Height < 0:
		return fmt.Errorf("%w: screen size %dx%d is negative", ErrInvalid, c.Screen.Width, c.Screen.Height)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	// Screen defaults to the trail map size
	w, h := c.Screen.Width, c.Screen.Height
	if w == 0 {
		w = c.Width
	}
	if h == 0 {
		h = c.Height
	}
	c.Derived.ScreenW = int32(w)
	c.Derived.ScreenH = int32(h)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
