package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/blepwn/internal/config"
)

// loadConfig reads the file named by --config (defaults when unset), lets
// override adjust it and validates the result.
func loadConfig(cmd *cobra.Command, override func(*config.Config)) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
