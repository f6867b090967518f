package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/flow"
	"github.com/pevans/ventricle/ventricle"
	"github.com/spf13/cobra"
)

func newCheckCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Parse and validate pulse definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0

			for _, path := range args {
				def, err := definition.ParseFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s\n     %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n     id=%s name=%q heartbeat=%s steps=%d\n",
					path, def.ID, def.Name, def.Heartbeat, len(def.Flow))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files invalid", failed, len(args))
			}
			return nil
		},
	}
}

// execOutput is what `exec` prints. Nothing is persisted.
type execOutput struct {
	ID          string            `json:"id"`
	Anchor      *string           `json:"anchor"`
	Variables   map[string]string `json:"variables,omitempty"`
	VisitedURLs []string          `json:"visited_urls,omitempty"`
	Item        any               `json:"item,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func newExecCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec FILE",
		Short: "Resolve a pulse's anchor and run its flow once without saving anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.ParseFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := execOutput{ID: def.ID}
			runErr := execOnce(ctx, flow.NewExecutor(a.fetcher(), a.log), def, &out)
			if runErr != nil {
				out.Error = runErr.Error()
			}

			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit")
	return cmd
}

func execOnce(ctx context.Context, exec *flow.Executor, def *definition.Definition, out *execOutput) error {
	anchor, found, err := exec.ResolveAnchor(ctx, def, nil)
	if err != nil {
		return fmt.Errorf("anchor: %w", err)
	}
	if !found {
		return errors.New("anchor selector matched nothing")
	}
	out.Anchor = &anchor

	result, err := exec.Run(ctx, def, ventricle.Seed(anchor))
	if result != nil {
		out.Variables = result.Variables.Map()
		out.VisitedURLs = result.VisitedURLs
	}
	if err != nil {
		return fmt.Errorf("flow: %w", err)
	}

	item := ventricle.NewItem(def, anchor, result, time.Now())
	out.Item = item
	return nil
}
