// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/mdconv/internal/events"
	"github.com/pdiddy/mdconv/pkg/types"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	cachedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// progressPrinter writes one status line per finished item and a line per
// batch transition. It is subscribed to the runner's notifier and so runs on
// the aggregator goroutine.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{w: w, quiet: quiet}
}

// HandleEvent implements events.Listener.
func (p *progressPrinter) HandleEvent(ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case events.KindBatchStart:
		if p.quiet {
			return nil
		}
		_, err := fmt.Fprintf(p.w, "%s %d file(s) %s\n",
			headerStyle.Render("Converting"), ev.Total, dimStyle.Render("batch "+shortID(ev.BatchID)))
		return err

	case events.KindItemComplete:
		if p.quiet {
			return nil
		}
		return p.item(ev)

	case events.KindBatchCancelled:
		_, err := fmt.Fprintf(p.w, "%s after %d of %d file(s)\n",
			warnStyle.Render("Cancelled"), ev.Completed, ev.Total)
		return err

	case events.KindCancelRequested:
		_, err := fmt.Fprintf(p.w, "%s %d pending file(s) skipped\n",
			warnStyle.Render("Interrupt:"), ev.Cancelled)
		return err
	}
	return nil
}

func (p *progressPrinter) item(ev events.Event) error {
	var err error
	switch {
	case ev.Success && ev.Cached:
		_, err = fmt.Fprintf(p.w, "  %s %s %s\n", cachedStyle.Render("✓"), ev.Input, dimStyle.Render("(cached)"))
	case ev.Success:
		_, err = fmt.Fprintf(p.w, "  %s %s → %s\n", successStyle.Render("✓"), ev.Input, ev.Output)
	default:
		_, err = fmt.Fprintf(p.w, "  %s %s: %s\n", errorStyle.Render("✗"), ev.Input, ev.Err)
	}
	return err
}

// printSummary writes the closing block for a finished batch.
func printSummary(w io.Writer, res types.BatchResult) {
	fmt.Fprintf(w, "\n%s %s\n", headerStyle.Render("Batch summary:"), dimStyle.Render(shortID(res.BatchID)))
	fmt.Fprintf(w, "  Total:     %d\n", res.Total)
	fmt.Fprintf(w, "  Succeeded: %s", successStyle.Render(fmt.Sprint(len(res.Successes))))
	if n := res.CachedCount(); n > 0 {
		fmt.Fprintf(w, " %s", cachedStyle.Render(fmt.Sprintf("(%d cached)", n)))
	}
	fmt.Fprintln(w)
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "  Failed:    %s\n", errorStyle.Render(fmt.Sprint(len(res.Errors))))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "    %s %s: %s\n", errorStyle.Render("✗"), e.Input, e.Error)
		}
	}
	if len(res.Omitted) > 0 {
		fmt.Fprintf(w, "  Omitted:   %s\n", warnStyle.Render(fmt.Sprint(len(res.Omitted))))
	}
	fmt.Fprintf(w, "  Elapsed:   %s\n", formatDuration(res.Elapsed))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
