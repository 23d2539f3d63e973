package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	if _, err := workspace.ParseRanking(c.Ranking); err != nil {
		errs = append(errs, err)
	}
	if _, err := bump.ParseStrategy(c.Bump.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Cargo == "" {
		errs = append(errs, errors.New("cargo must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateInputs checks that configured files exist.
func (c *Config) ValidateInputs() error {
	if c.MetadataFile != "" {
		if _, err := os.Stat(c.MetadataFile); err != nil {
			return fmt.Errorf("metadata file does not exist: %s\nHint: capture one with `cargo metadata --format-version 1 > %s`", c.MetadataFile, c.MetadataFile)
		}
	}
	if c.ManifestPath != "" {
		if _, err := os.Stat(c.ManifestPath); err != nil {
			return fmt.Errorf("manifest does not exist: %s\nHint: use --manifest-path to point at the workspace Cargo.toml", c.ManifestPath)
		}
	}
	return nil
}
