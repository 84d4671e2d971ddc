package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the unified configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate required fields
	if config.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if len(config.Drawings) == 0 {
		return nil, fmt.Errorf("at least one drawing must be defined")
	}

	// Validate drawing configs
	for i, dc := range config.Drawings {
		if dc.ID == "" {
			return nil, fmt.Errorf("drawing[%d].id is required", i)
		}
		if dc.Topic == "" {
			return nil, fmt.Errorf("drawing[%d].topic is required for %s", i, dc.ID)
		}
	}

	if _, err := ParseRegionMode(config.Extraction.RegionMode); err != nil {
		return nil, fmt.Errorf("extraction.regionMode: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ExtractOptionsFromConfig maps the extraction section onto engine
// options. Zero values keep the engine defaults; the region mode has
// been validated by LoadConfig.
func ExtractOptionsFromConfig(ec ExtractionConfig) ExtractOptions {
	opts := DefaultExtractOptions()
	if ec.MinArea > 0 {
		opts.MinArea = ec.MinArea
	}
	if ec.MaxArea > 0 {
		opts.MaxArea = ec.MaxArea
	}
	if ec.MinSkeletonArea > 0 {
		opts.MinSkeletonArea = ec.MinSkeletonArea
	}
	if ec.RasterSize > 0 {
		opts.RasterSize = ec.RasterSize
	}
	if ec.SnapTolerance > 0 {
		opts.SnapTolerance = ec.SnapTolerance
	}
	if ec.Workers > 0 {
		opts.Workers = ec.Workers
	}
	if mode, err := ParseRegionMode(ec.RegionMode); err == nil {
		opts.RegionMode = mode
	}
	return opts
}
