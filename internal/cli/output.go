package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pfrederiksen/notice-watch/internal/app"
	"github.com/pfrederiksen/notice-watch/internal/notice"
	"github.com/pfrederiksen/notice-watch/internal/storage"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// parseFormat validates a --format value.
func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

// WriteOutput writes the run result in the specified format
func WriteOutput(w io.Writer, result *app.Result, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeText outputs the run result as human-readable text
func writeText(w io.Writer, result *app.Result, verbose bool) error {
	switch result.Mode {
	case notice.ModeBootstrap:
		fmt.Fprintf(w, "Initialized state with %d notices (no email on first run).\n", result.SeenIDs)
		return nil
	case notice.ModeUnchanged:
		fmt.Fprintln(w, "No new notices.")
		return nil
	}

	if result.DryRun {
		fmt.Fprintf(w, "Dry run: %d new notices (email not sent).\n", len(result.NewNotices))
	} else {
		fmt.Fprintf(w, "Sent email: %d new notices.\n", len(result.NewNotices))
	}

	for _, n := range result.NewNotices {
		fmt.Fprintf(w, "  NEW: %s\n", describe(n))
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", n.ID)
			fmt.Fprintf(w, "       URL: %s\n", n.URL)
		}
	}
	return nil
}

func describe(n notice.Notice) string {
	var b strings.Builder
	if n.Category != "" {
		b.WriteString("[" + n.Category + "] ")
	}
	if n.Date != "" {
		b.WriteString(n.Date + " | ")
	}
	b.WriteString(n.Title)
	return b.String()
}

// StateSummary describes the persisted state for the state command.
type StateSummary struct {
	Path        string   `json:"path"`
	Initialized bool     `json:"initialized"`
	SeenCount   int      `json:"seen_count"`
	UpdatedAt   *string  `json:"updated_at"`
	Recent      []string `json:"recent_ids"`
}

func summarize(path string, state *storage.State, limit int) *StateSummary {
	recent := state.SeenIDs
	if limit >= 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return &StateSummary{
		Path:        path,
		Initialized: state.Initialized,
		SeenCount:   len(state.SeenIDs),
		UpdatedAt:   state.UpdatedAt,
		Recent:      append([]string{}, recent...),
	}
}

// WriteState writes a state summary in the specified format
func WriteState(w io.Writer, summary *StateSummary, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, summary)
	}

	updated := "never"
	if summary.UpdatedAt != nil {
		updated = *summary.UpdatedAt
	}
	initialized := "no"
	if summary.Initialized {
		initialized = "yes"
	}

	fmt.Fprintf(w, "State file:  %s\n", summary.Path)
	fmt.Fprintf(w, "Initialized: %s\n", initialized)
	fmt.Fprintf(w, "Seen ids:    %d\n", summary.SeenCount)
	fmt.Fprintf(w, "Updated at:  %s\n", updated)
	if len(summary.Recent) > 0 {
		fmt.Fprintf(w, "Most recent: %s\n", strings.Join(summary.Recent, ", "))
	}
	return nil
}
