// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconv/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Review past conversion batches",
	Long: `History reads the SQLite database in history.dir, which records every
batch run by convert together with the outcome of each file.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent batches, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	batches, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	if format != formatText {
		return writeStructured(os.Stdout, format, batches)
	}
	if len(batches) == 0 {
		fmt.Println("No batches recorded.")
		return nil
	}
	for _, b := range batches {
		printBatchLine(os.Stdout, b)
	}
	return nil
}

// --- show subcommand ---

var historyShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show every file in a batch",
	Long: `Show prints the per-file outcomes of one batch. Any unique prefix of the
batch ID is accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, items, err := store.Batch(context.Background(), args[0])
	if err != nil {
		return err
	}
	if format != formatText {
		return writeStructured(os.Stdout, format, struct {
			Batch history.BatchSummary `json:"batch" yaml:"batch"`
			Items []history.Item       `json:"items" yaml:"items"`
		}{summary, items})
	}

	printBatchLine(os.Stdout, summary)
	for _, it := range items {
		switch it.Status {
		case history.StatusSuccess:
			note := it.Output
			if it.Cached {
				note += " " + dimStyle.Render("(cached)")
			}
			fmt.Printf("  %s %s → %s\n", successStyle.Render("✓"), it.Input, note)
		case history.StatusFailure:
			fmt.Printf("  %s %s: %s\n", errorStyle.Render("✗"), it.Input, it.Message)
		default:
			fmt.Printf("  %s %s %s\n", warnStyle.Render("-"), it.Input, dimStyle.Render("(omitted)"))
		}
	}
	return nil
}

// --- prune subcommand ---

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete batches older than a given age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return fmt.Errorf("--older-than must be positive, got %s", age)
		}
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Prune(context.Background(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("%s %d batch(es) pruned\n", successStyle.Render("✓"), n)
		return nil
	},
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.History)
}

func printBatchLine(w io.Writer, b history.BatchSummary) {
	state := successStyle.Render("done")
	switch {
	case b.Cancelled:
		state = warnStyle.Render("cancelled")
	case b.Failed > 0:
		state = errorStyle.Render("failed")
	}
	fmt.Fprintf(w, "%s  %s  %-9s  %d file(s): %d ok (%d cached), %d failed, %d omitted  %s\n",
		shortID(b.ID),
		b.StartedAt.Local().Format("2006-01-02 15:04:05"),
		state,
		b.Total, b.Succeeded, b.Cached, b.Failed, b.Omitted,
		dimStyle.Render(formatDuration(b.Elapsed)))
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of batches (0 for all)")
	historyListCmd.Flags().String("format", formatText, "output format: text, yaml, or json")
	historyShowCmd.Flags().String("format", formatText, "output format: text, yaml, or json")
	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete batches started before this age")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
