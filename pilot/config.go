// CLAUDE:SUMMARY Configuration structs (buffers, workflow, screenshot, browser, spawn) and YAML loader for pilot.
package pilot

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pilot configuration.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	BufferSize int              `yaml:"buffer_size"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Spawn      SpawnConfig      `yaml:"spawn"`
}

// WorkflowConfig controls workflow execution limits.
type WorkflowConfig struct {
	StepTimeout   time.Duration `yaml:"step_timeout"`
	AssertTimeout time.Duration `yaml:"assert_timeout"`
	MaxSteps      int           `yaml:"max_steps"`
}

// ScreenshotConfig controls screenshot optimisation.
type ScreenshotConfig struct {
	MaxWidth int `yaml:"max_width"`
	Quality  int `yaml:"quality"`
}

// SpawnConfig controls embedded application startup.
type SpawnConfig struct {
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "pilote.db"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 500
	}
	if c.Workflow.StepTimeout <= 0 {
		c.Workflow.StepTimeout = 10 * time.Second
	}
	if c.Workflow.AssertTimeout <= 0 {
		c.Workflow.AssertTimeout = 5 * time.Second
	}
	if c.Workflow.MaxSteps <= 0 {
		c.Workflow.MaxSteps = 50
	}
	if c.Screenshot.MaxWidth <= 0 {
		c.Screenshot.MaxWidth = 1280
	}
	if c.Screenshot.Quality <= 0 {
		c.Screenshot.Quality = 80
	}
	if c.Spawn.ReadyTimeout <= 0 {
		c.Spawn.ReadyTimeout = 30 * time.Second
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
