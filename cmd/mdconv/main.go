// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the mdconv CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconv/internal/envfile"
	"github.com/pdiddy/mdconv/internal/logging"
	"github.com/pdiddy/mdconv/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is built in the root PersistentPreRunE from --log-level and
// --log-format.
var logger = logging.Discard()

// rootCmd is the base command for the mdconv CLI.
var rootCmd = &cobra.Command{
	Use:   "mdconv",
	Short: "Convert office documents to Markdown",
	Long: `mdconv converts PDF, Word, PowerPoint, Excel, JSON, text and CSV files
into Markdown. Parsing is done by markitdown running in a container (docker
or podman); mdconv runs many files concurrently, reports progress, skips
inputs whose output is still current, and keeps a history of every batch.

Settings come from flags, MDCONV_* environment variables, a .env file, and
mdconv.yaml, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		l, err := logging.New(os.Stderr, level, logging.Format(format))
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./mdconv.yaml or ~/.config/mdconv/mdconv.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with MDCONV_* settings")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
}

func initConfig() {
	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	if keys, err := envfile.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	} else if len(keys) > 0 {
		fmt.Fprintf(os.Stderr, "Loaded settings from %s: %v\n", envFile, keys)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mdconv")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "mdconv"))
		}
	}

	setDefaults(viper.GetViper(), types.DefaultConfig())

	viper.SetEnvPrefix(strings.TrimSuffix(envfile.Prefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
