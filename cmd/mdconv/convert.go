// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconv/internal/cache"
	"github.com/pdiddy/mdconv/internal/container"
	"github.com/pdiddy/mdconv/internal/convert"
	"github.com/pdiddy/mdconv/internal/events"
	"github.com/pdiddy/mdconv/internal/history"
	"github.com/pdiddy/mdconv/internal/runner"
	"github.com/pdiddy/mdconv/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert documents to Markdown",
	Long: `Convert runs every input file through markitdown on a fixed pool of
workers and writes <output-dir>/<name>.md for each one. Inputs whose output
is newer than the cached fingerprint are skipped. Invalid inputs are
reported as failures without being converted.

Press Ctrl-C to cancel: files not yet started are skipped, files already
converting are allowed to finish.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringP("output-dir", "o", "", "directory for Markdown output (default: next to each input)")
	convertCmd.Flags().Int("workers", types.DefaultWorkers, "number of concurrent conversions")
	convertCmd.Flags().Duration("timeout", types.DefaultJobTimeout, "per-file conversion timeout")
	convertCmd.Flags().Bool("no-cache", false, "convert every file even if its output is current")
	convertCmd.Flags().Bool("no-frontmatter", false, "omit the YAML frontmatter block")
	convertCmd.Flags().Bool("no-history", false, "do not record this batch in the history database")
	convertCmd.Flags().String("runtime", string(types.RuntimeAuto), "container runtime: auto, docker, or podman")
	convertCmd.Flags().String("image", types.DefaultImage, "markitdown container image")
	convertCmd.Flags().String("format", formatText, "summary format: text, yaml, or json")
	convertCmd.Flags().BoolP("quiet", "q", false, "print only the summary")

	rootCmd.AddCommand(convertCmd)
}

var convertFlagKeys = map[string]string{
	"output-dir": "conversion.output_dir",
	"workers":    "runner.workers",
	"timeout":    "runner.job_timeout",
	"runtime":    "conversion.runtime",
	"image":      "conversion.image",
}

func runConvert(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	bindFlags(cmd, viper.GetViper(), convertFlagKeys)
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if noFM, _ := cmd.Flags().GetBool("no-frontmatter"); noFM {
		cfg.Conversion.Frontmatter = false
	}
	if noHist, _ := cmd.Flags().GetBool("no-history"); noHist {
		cfg.History.Enabled = false
	}

	// Structured summaries own stdout; progress goes to stderr.
	progressOut := io.Writer(os.Stdout)
	if format != formatText {
		progressOut = os.Stderr
	}

	res, err := convertFiles(cmd.Context(), cfg, args, progressOut, quiet)
	if err != nil {
		return err
	}

	if format == formatText {
		printSummary(os.Stdout, res)
	} else if err := writeStructured(os.Stdout, format, res); err != nil {
		return err
	}

	switch {
	case res.Cancelled:
		return errors.New("batch cancelled")
	case res.HasFailures():
		return fmt.Errorf("%d file(s) failed conversion", len(res.Errors))
	}
	return nil
}

// convertFiles validates inputs, runs the batch, and records it in the
// history database. Rejected inputs are folded into the result as errors.
func convertFiles(ctx context.Context, cfg types.Config, inputs []string, progressOut io.Writer, quiet bool) (types.BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Conversion.OutputDir != "" {
		if err := convert.ValidateOutputDir(cfg.Conversion.OutputDir); err != nil {
			return types.BatchResult{}, err
		}
	}

	options := map[string]string{
		"image":       cfg.Conversion.Image,
		"frontmatter": strconv.FormatBool(cfg.Conversion.Frontmatter),
	}
	jobs, rejected := convert.PrepareJobs(inputs, cfg.Conversion.OutputDir, options)
	for _, e := range rejected {
		logger.Warn("input rejected", slog.String("input", e.Input), slog.String("error", e.Error))
	}

	notifier := events.NewNotifier(logger)
	notifier.Subscribe(newProgressPrinter(progressOut, quiet))

	// Placeholder for a batch in which every input was rejected.
	convertFn := runner.ConvertFunc(func(context.Context, types.ConversionJob) error {
		return container.ErrNoRuntime
	})
	if len(jobs) > 0 {
		rt, err := container.Resolve(ctx, cfg.Conversion.Runtime)
		if err != nil {
			return types.BatchResult{}, err
		}
		backend, err := convert.NewMarkitdownConverter(ctx, rt, cfg.Conversion.Image)
		if err != nil {
			return types.BatchResult{}, err
		}
		logger.Info("conversion backend ready", slog.String("runtime", rt.Name()), slog.String("image", cfg.Conversion.Image))
		convertFn = convert.NewFileConverter(backend, cfg.Conversion.Frontmatter).Convert
	}

	opts := []runner.Option{runner.WithNotifier(notifier), runner.WithLogger(logger)}
	if cfg.Cache.Enabled {
		c := cache.New(cfg.Cache, logger)
		for _, job := range jobs {
			if _, err := c.InvalidateIfOptionsChanged(job.Input, job.Output, job.Options); err != nil {
				logger.Warn("cache update failed", slog.String("input", job.Input), slog.String("error", err.Error()))
			}
		}
		opts = append(opts, runner.WithCache(c))
	}
	r, err := runner.New(cfg.Runner, opts...)
	if err != nil {
		return types.BatchResult{}, err
	}
	defer r.Shutdown(true)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				r.CancelAll()
			}
		case <-finished:
		}
	}()

	res, err := r.RunBatch(ctx, jobs, convertFn, nil)
	if err != nil {
		return types.BatchResult{}, err
	}
	res = mergeRejected(res, rejected)

	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg.History, res); err != nil {
			logger.Warn("recording history failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// mergeRejected adds inputs rejected before submission to res so the
// summary and history account for every argument.
func mergeRejected(res types.BatchResult, rejected []types.ErrorItem) types.BatchResult {
	res.Total += len(rejected)
	res.Errors = append(res.Errors, rejected...)
	return res
}

func recordHistory(ctx context.Context, cfg types.HistoryConfig, res types.BatchResult) error {
	store, err := history.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.RecordBatch(ctx, res); err != nil {
		return fmt.Errorf("recording batch %s in %s: %w", res.BatchID, filepath.Clean(cfg.Dir), err)
	}
	return nil
}
