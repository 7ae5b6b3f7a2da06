package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/logging"
	"github.com/san-kum/nodesim/internal/sim"
)

const (
	DefaultDt          = 3600
	DefaultMinParallel = 2
	DefaultOutputDir   = "out"
	DefaultFormat      = "csv"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

type Config struct {
	Model            string            `yaml:"model"`
	SimStart         time.Time         `yaml:"sim_start"`
	SimEnd           time.Time         `yaml:"sim_end"`
	Dt               int               `yaml:"dt"`
	Parallel         int               `yaml:"parallel"`
	MinParallelStage int               `yaml:"min_parallel_stage"`
	CheckNumeric     bool              `yaml:"check_numeric"`
	Preset           string            `yaml:"preset,omitempty"`
	Forcing          map[string]string `yaml:"forcing,omitempty"`
	Output           OutputConfig      `yaml:"output"`
	DebugNodes       []string          `yaml:"debug_nodes,omitempty"`
	StateOutputTimes []time.Time       `yaml:"state_output_times,omitempty"`
	SaveFinalState   bool              `yaml:"save_final_state"`
	InitialState     string            `yaml:"initial_state,omitempty"`
	Log              LogConfig         `yaml:"log"`
}

type OutputConfig struct {
	Dir    string         `yaml:"dir"`
	Format string         `yaml:"format"`
	Select []SelectConfig `yaml:"select,omitempty"`
}

// SelectConfig picks one output variable of one node. An empty or "*"
// field matches everything.
type SelectConfig struct {
	Node     string `yaml:"node"`
	Variable string `yaml:"variable"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Dt:               DefaultDt,
		MinParallelStage: DefaultMinParallel,
		Output: OutputConfig{
			Dir:    DefaultOutputDir,
			Format: DefaultFormat,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Sim returns the engine settings of the run.
func (c *Config) Sim() sim.Config {
	return sim.Config{
		Start:        c.SimStart,
		End:          c.SimEnd,
		Dt:           c.Dt,
		Parallel:     c.Parallel,
		MinParallel:  c.MinParallelStage,
		CheckNumeric: c.CheckNumeric,
	}
}

// Validate checks everything that can be checked without opening files.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: no model file given", dynamo.ErrInvalidConfig)
	}
	if err := c.Sim().Validate(); err != nil {
		return err
	}
	switch c.Output.Format {
	case "csv", "sqlite", "none":
	default:
		return fmt.Errorf("%w: output format %q (want csv, sqlite or none)", dynamo.ErrInvalidConfig, c.Output.Format)
	}
	if c.Output.Format != "none" && c.Output.Dir == "" {
		return fmt.Errorf("%w: output dir is empty", dynamo.ErrInvalidConfig)
	}
	for _, t := range c.StateOutputTimes {
		if !t.After(c.SimStart) || t.After(c.SimEnd) {
			return fmt.Errorf("%w: state output time %s outside (%s, %s]", dynamo.ErrInvalidConfig,
				t.Format(time.RFC3339), c.SimStart.Format(time.RFC3339), c.SimEnd.Format(time.RFC3339))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", dynamo.ErrInvalidConfig, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log format %q (want text or json)", dynamo.ErrInvalidConfig, c.Log.Format)
	}
	if c.Preset != "" && GetPreset(c.Preset) == nil {
		return fmt.Errorf("%w: unknown preset %q (available: %v)", dynamo.ErrInvalidConfig, c.Preset, ListPresets())
	}
	return nil
}
