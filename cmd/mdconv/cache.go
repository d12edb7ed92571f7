// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconv/internal/cache"
	"github.com/pdiddy/mdconv/internal/convert"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the conversion cache",
	Long: `Cache manages file_cache.json, which records a fingerprint of every
input converted successfully so unchanged files are skipped on the next
run. Entries expire after cache.retention_days.`,
}

// --- stats subcommand ---

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		c, err := openCache()
		if err != nil {
			return err
		}
		st := c.Stats()
		if format != formatText {
			return writeStructured(os.Stdout, format, st)
		}
		fmt.Printf("%s\n", headerStyle.Render("Cache"))
		fmt.Printf("  File:      %s\n", st.CacheFile)
		fmt.Printf("  Entries:   %d\n", st.TotalItems)
		fmt.Printf("  Retention: %d day(s)\n", st.RetentionDays)
		return nil
	},
}

// --- clear subcommand ---

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		n := c.Stats().TotalItems
		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Printf("%s %d entr%s removed\n", successStyle.Render("✓"), n, plural(n, "y", "ies"))
		return nil
	},
}

// --- invalidate subcommand ---

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [files...]",
	Short: "Forget the cache entries for specific inputs",
	Long: `Invalidate removes the cache entry for each input so the next convert
run converts it again. The output path is derived the same way convert
derives it, so pass the same --output-dir.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd, viper.GetViper(), map[string]string{"output-dir": "conversion.output_dir"})
		c, err := openCache()
		if err != nil {
			return err
		}
		outDir := viper.GetString("conversion.output_dir")
		for _, in := range args {
			if err := c.Invalidate(in, convert.OutputPath(in, outDir)); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", successStyle.Render("✓"), in)
		}
		return nil
	},
}

func openCache() (*cache.Cache, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.Cache, logger), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	cacheStatsCmd.Flags().String("format", formatText, "output format: text, yaml, or json")
	cacheInvalidateCmd.Flags().StringP("output-dir", "o", "", "output directory used when the files were converted")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}
