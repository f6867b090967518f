package main

import (
	"fmt"
	"os"

	"github.com/pevans/ventricle/config"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the pulse directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}

			written, err := config.WriteDefaultConfigFile(path, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if written {
				fmt.Fprintf(out, "Wrote %s\n", path)
			} else {
				fmt.Fprintf(out, "%s already exists (use --force to overwrite)\n", path)
			}

			// 0700: owner-only access
			if err := os.MkdirAll(a.cfg.PulsesDir, 0o700); err != nil {
				return fmt.Errorf("failed to create pulses directory: %w", err)
			}
			fmt.Fprintf(out, "Pulse definitions go in %s\n", a.cfg.PulsesDir)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}
