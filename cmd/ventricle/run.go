package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/ventricle/api"
	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/flow"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/ventricle"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 60 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var printItems bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the pulse directory and run pulses on their heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, printItems)
		},
	}

	cmd.Flags().BoolVar(&printItems, "print", false, "print each new item as a JSON line on stdout")
	return cmd
}

func (a *app) run(cmd *cobra.Command, printItems bool) error {
	cfg := a.cfg

	// 0700: owner-only access
	if err := os.MkdirAll(cfg.PulsesDir, 0o700); err != nil {
		return fmt.Errorf("failed to create pulses directory: %w", err)
	}

	recs, err := a.openRecords()
	if err != nil {
		return err
	}
	defer recs.Close()

	items, err := a.openFeed()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	notify := func(item feed.Item) {
		if !printItems {
			return
		}
		data, err := json.Marshal(item)
		if err != nil {
			a.log.Warn("Failed to encode item", logger.Error(err))
			return
		}
		fmt.Fprintln(out, string(data))
	}

	engine := ventricle.New(
		ventricle.Config{
			Dir:          cfg.PulsesDir,
			TickInterval: cfg.Scheduler.TickInterval,
			Concurrency:  cfg.Scheduler.Concurrency,
			Debounce:     cfg.Scheduler.Debounce,
		},
		recs, items,
		flow.NewExecutor(a.fetcher(), a.log),
		ventricle.WithLogger(a.log),
		ventricle.WithNotifier(notify),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	var srv *http.Server
	if cfg.API.Enabled {
		gin.SetMode(gin.ReleaseMode)
		srv = &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           api.NewServer(recs, items, engine).SetupRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.log.Info("API listening", logger.String("addr", cfg.API.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully")
	case err := <-errCh:
		runErr = fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("API shutdown failed", logger.Error(err))
		}
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		a.log.Warn("Shutdown timeout exceeded", logger.Error(err))
	}

	return runErr
}
