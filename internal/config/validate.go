package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateProvider() error {
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return errors.New("provider.base_url must be set")
	}
	if strings.TrimSpace(c.Provider.Email) == "" || c.Provider.Password == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/rinkreel/config.toml"
		}
		return fmt.Errorf("provider credentials are required. Set RINKREEL_PROVIDER_EMAIL and RINKREEL_PROVIDER_PASSWORD env vars or edit %s (create with 'rinkreel config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.SegmentWindowMS < 1000 {
		return errors.New("processing.segment_window_ms must be at least 1000")
	}
	if c.Processing.CaptionDisplayMS < 500 {
		return errors.New("processing.caption_display_ms must be at least 500")
	}
	if c.Processing.FetchConcurrency < 1 {
		return errors.New("processing.fetch_concurrency must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
