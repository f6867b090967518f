// Command ventricle watches a directory of pulse definitions and records a
// new item whenever a watched page changes.
package main

import (
	"fmt"
	"os"

	"github.com/pevans/ventricle/config"
	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/fetch"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/records"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand once the root has loaded
// configuration.
type app struct {
	cfgFile  string
	logLevel string

	cfg *config.Config
	log logger.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ventricle",
		Short:         "Watch web pages for changes and collect pulse items",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ~/.ventricle/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newCheckCmd(a),
		newExecCmd(a),
		newPulsesCmd(a),
		newItemsCmd(a),
		newInitCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) fetcher() *fetch.Fetcher {
	return fetch.New(fetch.Config{
		Timeout:   a.cfg.Fetch.Timeout,
		UserAgent: a.cfg.Fetch.UserAgent,
	})
}

func (a *app) openRecords() (*records.Store, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(parentDir(a.cfg.Storage.RecordsDSN), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	store, err := records.NewStore(a.cfg.Storage.RecordsDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open records: %w", err)
	}
	return store, nil
}

func (a *app) openFeed() (*feed.Feed, error) {
	f, err := feed.NewFeed(a.cfg.Storage.ItemsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open items: %w", err)
	}
	return f, nil
}
