// Package config provides configuration loading and management for
// lesionmap. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Input locates the cohort and atlas reference data
	Input struct {
		// LesionFolder is the directory of registered subject masks (required)
		LesionFolder string `yaml:"lesionFolder"`

		// Pattern is the filename suffix that registered masks carry
		Pattern string `yaml:"pattern"`

		// Template is an optional anatomical template; when set it is
		// used as the heatmap underlay and the density volume is also
		// exported as NIfTI in its space
		Template string `yaml:"template"`

		// AtlasVolume is the warped label volume defining the regions
		AtlasVolume string `yaml:"atlasVolume"`

		// AtlasLabels is the CSV label table; empty uses the built-in
		// brainstem table
		AtlasLabels string `yaml:"atlasLabels"`

		// AtlasFormat selects the label table format:
		// brainstem, talairach or neudorfer
		AtlasFormat string `yaml:"atlasFormat"`
	} `yaml:"input"`

	// Analysis controls aggregation and region statistics
	Analysis struct {
		// Regions restricts the report to a subset of atlas regions;
		// empty analyzes all known regions
		Regions []string `yaml:"regions"`

		// Normalize reports densities as fractions of the cohort size
		// instead of raw subject counts
		Normalize bool `yaml:"normalize"`

		// Threads is the worker count for parallel loading and validation
		Threads int `yaml:"threads"`
	} `yaml:"analysis"`

	// Heatmap controls the rendered projection
	Heatmap struct {
		// Axis is the slicing direction: axial, coronal or sagittal
		Axis string `yaml:"axis"`

		// Slices is the ordered sequence of slice indices to composite
		Slices []int `yaml:"slices"`

		// LegendPosition places the color legend: left or right
		LegendPosition string `yaml:"legendPosition"`
	} `yaml:"heatmap"`

	// Output controls where results are written
	Output struct {
		// Dir is the directory for all generated reports and images
		Dir string `yaml:"dir"`

		// Verbose enables per-subject progress logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values. The default
// slice selection matches the published one-row lesion frequency figure
// for the 1mm MNI grid.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Pattern = "space-MNI152T1w1mm.nii.gz"
	cfg.Input.AtlasFormat = "brainstem"

	cfg.Analysis.Normalize = true
	cfg.Analysis.Threads = 1

	cfg.Heatmap.Axis = "axial"
	cfg.Heatmap.Slices = []int{132, 113, 93, 84, 73, 44}
	cfg.Heatmap.LegendPosition = "left"

	cfg.Output.Dir = "lesionmap_results"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks that required options are present and enumerated
// options hold legal values.
func (c *Config) Validate() error {
	if c.Input.LesionFolder == "" {
		return fmt.Errorf("input.lesionFolder is required")
	}
	if c.Input.AtlasVolume == "" {
		return fmt.Errorf("input.atlasVolume is required")
	}
	switch c.Input.AtlasFormat {
	case "", "brainstem":
	case "talairach", "neudorfer":
		if c.Input.AtlasLabels == "" {
			return fmt.Errorf("input.atlasLabels is required for the %s format", c.Input.AtlasFormat)
		}
	default:
		return fmt.Errorf("unknown input.atlasFormat %q", c.Input.AtlasFormat)
	}
	switch c.Heatmap.Axis {
	case "axial", "coronal", "sagittal":
	default:
		return fmt.Errorf("heatmap.axis must be axial, coronal or sagittal, got %q", c.Heatmap.Axis)
	}
	switch c.Heatmap.LegendPosition {
	case "left", "right":
	default:
		return fmt.Errorf("heatmap.legendPosition must be left or right, got %q", c.Heatmap.LegendPosition)
	}
	if len(c.Heatmap.Slices) == 0 {
		return fmt.Errorf("heatmap.slices must select at least one slice")
	}
	if c.Analysis.Threads < 1 {
		return fmt.Errorf("analysis.threads must be at least 1, got %d", c.Analysis.Threads)
	}
	return nil
}
