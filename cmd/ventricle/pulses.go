package main

import (
	"errors"
	"fmt"

	"github.com/pevans/ventricle/records"
	"github.com/spf13/cobra"
)

func newPulsesCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "pulses [ID]",
		Short: "List recorded pulses, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openRecords()
			if err != nil {
				return err
			}
			defer store.Close()

			var recs []records.Record
			if len(args) == 1 {
				rec, err := store.GetRecord(args[0])
				if errors.Is(err, records.ErrRecordNotFound) {
					return fmt.Errorf("pulse %q not found", args[0])
				}
				if err != nil {
					return err
				}
				recs = []records.Record{*rec}
			} else {
				recs, err = store.ListRecords()
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return printJSON(out, map[string]any{"pulses": recs, "total": len(recs)})
			case "table":
				printPulsesTable(out, recs)
				return nil
			default:
				return fmt.Errorf("unknown format %q (use table or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}
