// Package config provides configuration loading and management for dcemaps.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"dcemaps/internal/models"
	"dcemaps/pkg/batch"
	"dcemaps/pkg/perfusion"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores share the voxels of one case
		NumCores int `yaml:"numCores"`

		// CaseWorkers is the number of cases processed concurrently
		CaseWorkers int `yaml:"caseWorkers"`

		// FailurePolicy is "fail-fast" or "skip" for case-level errors
		FailurePolicy string `yaml:"failurePolicy"`
	} `yaml:"processing"`

	// Perfusion analysis parameters
	Perfusion struct {
		// TemporalResolution is the interval between timepoints in seconds
		TemporalResolution float64 `yaml:"temporalResolution"`

		// WindowSize is the initial slope window length in timepoints
		WindowSize int `yaml:"windowSize"`

		// OnsetTimeConstraint is the latest onset time in minutes
		OnsetTimeConstraint float64 `yaml:"onsetTimeConstraint"`

		// FinalSlopeTime is the trailing window length in minutes
		FinalSlopeTime float64 `yaml:"finalSlopeTime"`

		// FinalWindowRounding is "truncate" or "nearest"
		FinalWindowRounding string `yaml:"finalWindowRounding"`

		// MaskLabels is "nonzero" or "one": which mask labels are valid
		MaskLabels string `yaml:"maskLabels"`
	} `yaml:"perfusion"`

	// Output parameters
	Output struct {
		// Extension selects which files in a directory are cases
		Extension string `yaml:"extension"`

		// SaveOnsetTime additionally writes the OT_ onset time map
		SaveOnsetTime bool `yaml:"saveOnsetTime"`

		// SavePreviews writes PNG slices of every map
		SavePreviews bool `yaml:"savePreviews"`

		// SaveCurvePlot writes the mean enhancement curve chart
		SaveCurvePlot bool `yaml:"saveCurvePlot"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.CaseWorkers = 1
	cfg.Processing.FailurePolicy = batch.SkipAndContinue.String()

	// Set default perfusion parameters
	cfg.Perfusion.TemporalResolution = 0
	cfg.Perfusion.WindowSize = 3
	cfg.Perfusion.OnsetTimeConstraint = 1.0
	cfg.Perfusion.FinalSlopeTime = 1.0
	cfg.Perfusion.FinalWindowRounding = perfusion.Truncate.String()
	cfg.Perfusion.MaskLabels = models.NonZeroLabels.String()

	// Set default output parameters
	cfg.Output.Extension = ".nii.gz"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// PerfusionParams converts the perfusion section into analysis parameters.
func (c *Config) PerfusionParams() (perfusion.Params, error) {
	rounding, err := perfusion.ParseRounding(c.Perfusion.FinalWindowRounding)
	if err != nil {
		return perfusion.Params{}, err
	}
	return perfusion.Params{
		TemporalResolution:  c.Perfusion.TemporalResolution,
		WindowSize:          c.Perfusion.WindowSize,
		OnsetTimeConstraint: c.Perfusion.OnsetTimeConstraint,
		FinalSlopeTime:      c.Perfusion.FinalSlopeTime,
		FinalWindowRounding: rounding,
		NumCores:            c.Processing.NumCores,
	}, nil
}

// Policy parses the configured batch failure policy.
func (c *Config) Policy() (batch.FailurePolicy, error) {
	return batch.ParseFailurePolicy(c.Processing.FailurePolicy)
}

// MaskRule parses the configured mask label rule.
func (c *Config) MaskRule() (models.LabelRule, error) {
	return models.ParseLabelRule(c.Perfusion.MaskLabels)
}
