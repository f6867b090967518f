package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/records"
)

const timeLayout = "2006-01-02 15:04"

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printPulsesTable prints pulse records in human-readable form
func printPulsesTable(w io.Writer, recs []records.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No pulses recorded.")
		return
	}

	for _, rec := range recs {
		status := "enabled"
		if !rec.Enabled {
			status = "disabled"
		}

		checked := "never"
		if rec.LastChecked != nil {
			checked = rec.LastChecked.Local().Format(timeLayout)
		}

		anchor := "-"
		if rec.LastAnchorValue != nil {
			anchor = truncate(*rec.LastAnchorValue, 40)
		}

		fmt.Fprintf(w, "%s (%s)\n", rec.ID, status)
		fmt.Fprintf(w, "   %s | every %s | checked: %s\n", truncate(rec.Name, 60), rec.Heartbeat, checked)
		fmt.Fprintf(w, "   Anchor: %s\n", anchor)
		fmt.Fprintf(w, "   File: %s\n", rec.FilePath)
		fmt.Fprintln(w)
	}
}

// printItemsTable prints items in human-readable form
func printItemsTable(w io.Writer, items []feed.Item, offset int) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items to display.")
		return
	}

	fmt.Fprintf(w, "Showing %d-%d\n\n", offset+1, offset+len(items))

	for _, item := range items {
		marker := "*"
		if item.Seen {
			marker = " "
		}

		fmt.Fprintf(w, "%s %s\n", marker, truncate(item.Title, 70))
		fmt.Fprintf(w, "   %s | Created: %s", item.PulseID, item.CreatedAt.Local().Format(timeLayout))
		if item.ExpiresAt != nil {
			fmt.Fprintf(w, " | Expires: %s", item.ExpiresAt.Local().Format(timeLayout))
		}
		fmt.Fprintln(w)
		if item.Content != "" {
			fmt.Fprintf(w, "   %s\n", truncate(item.Content, 150))
		}
		if item.URL != "" {
			fmt.Fprintf(w, "   URL: %s\n", item.URL)
		}
		fmt.Fprintf(w, "   ID: %s\n", item.ID)
		fmt.Fprintln(w)
	}
}

// printItemsCompact prints one line per item
func printItemsCompact(w io.Writer, items []feed.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items to display.")
		return
	}

	for _, item := range items {
		fmt.Fprintf(w, "%s %s (%s)\n", item.ID.String()[:8], item.Title, item.PulseID)
	}
}

// truncate shortens s to at most n bytes, marking the cut with "..."
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// parentDir is the directory holding a SQLite path.
func parentDir(path string) string {
	return filepath.Dir(path)
}
