// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconv/pkg/types"
)

// setDefaults registers every configuration key so that environment
// variables are seen by Unmarshal even when no config file sets the key.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("runner.workers", d.Runner.Workers)
	v.SetDefault("runner.job_timeout", d.Runner.JobTimeout)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.retention_days", d.Cache.RetentionDays)
	v.SetDefault("conversion.runtime", string(d.Conversion.Runtime))
	v.SetDefault("conversion.image", d.Conversion.Image)
	v.SetDefault("conversion.frontmatter", d.Conversion.Frontmatter)
	v.SetDefault("conversion.output_dir", d.Conversion.OutputDir)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.dir", d.History.Dir)
}

// loadConfig decodes the merged viper settings and validates them.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// bindFlags ties command flags to configuration keys so a flag, when set,
// overrides the file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) {
	for flag, key := range keys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}
