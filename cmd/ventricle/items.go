package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pevans/ventricle/feed"
	"github.com/spf13/cobra"
)

func newItemsCmd(a *app) *cobra.Command {
	var (
		filter feed.Filter
		format string
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List collected items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 || filter.Offset < 0 {
				return errors.New("limit and offset must not be negative")
			}

			f, err := a.openFeed()
			if err != nil {
				return err
			}

			items, err := f.List(filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				printItemsTable(out, items, filter.Offset)
			case "json":
				return printJSON(out, map[string]any{"items": items, "count": len(items)})
			case "compact":
				printItemsCompact(out, items)
			default:
				return fmt.Errorf("unknown format %q (use table, json or compact)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.PulseID, "pulse", "", "only items from this pulse")
	cmd.Flags().BoolVar(&filter.Unseen, "unseen", false, "only items not yet marked seen")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum items to show (0 for all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "items to skip")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json or compact")

	cmd.AddCommand(newItemsSeenCmd(a))
	return cmd
}

func newItemsSeenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seen ID",
		Short: "Mark an item as seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid item ID: %w", err)
			}

			f, err := a.openFeed()
			if err != nil {
				return err
			}

			item, err := f.MarkSeen(id)
			if errors.Is(err, feed.ErrItemNotFound) {
				return fmt.Errorf("item %s not found", id)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Marked seen: %s\n", item.Title)
			return nil
		},
	}
}
