// Package flow resolves a definition's change anchor and runs its fetch
// steps.
package flow

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/extract"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/template"
)

// Fetcher retrieves and parses a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (extract.Document, error)
}

// Result is the output of a flow run.
type Result struct {
	Variables   *template.Scope
	VisitedURLs []string
}

// Executor runs anchors and flows against a Fetcher.
type Executor struct {
	fetcher Fetcher
	log     logger.Logger
}

// NewExecutor creates an Executor. A nil log discards output.
func NewExecutor(fetcher Fetcher, log logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{fetcher: fetcher, log: log}
}

// ResolveAnchor fetches the anchor page and reads the first node matching the
// anchor selector. ok is false when nothing matched or the value was empty.
// The flow is never evaluated.
func (e *Executor) ResolveAnchor(ctx context.Context, def *definition.Definition, scope *template.Scope) (string, bool, error) {
	if scope == nil {
		scope = template.NewScope()
	}

	url, err := template.Resolve(definition.CleanURL(def.Anchor.URL), scope, true)
	if err != nil {
		return "", false, fmt.Errorf("anchor url: %w", err)
	}

	doc, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", false, err
	}

	nodes := doc.Query(def.Anchor.Select)
	if len(nodes) == 0 {
		e.log.Debug("Anchor selector matched nothing",
			logger.String("pulse_id", def.ID),
			logger.String("select", def.Anchor.Select),
		)
		return "", false, nil
	}

	value := extract.ReadAttribute(nodes[0], def.Anchor.Attribute)
	return value, value != "", nil
}

// Run executes the steps of def in ascending step order, carrying seed
// forward. Each step's URL is resolved against the variables produced so
// far. The first required extraction failure aborts the run.
func (e *Executor) Run(ctx context.Context, def *definition.Definition, seed *template.Scope) (*Result, error) {
	scope := seed.Clone()
	result := &Result{Variables: scope}

	for _, step := range SortSteps(def.Flow) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		url, err := template.Resolve(definition.CleanURL(step.URL), scope, true)
		if err != nil {
			return result, fmt.Errorf("step %d url: %w", step.Step, err)
		}
		result.VisitedURLs = append(result.VisitedURLs, url)

		doc, err := e.fetcher.Fetch(ctx, url)
		if err != nil {
			return result, fmt.Errorf("step %d: %w", step.Step, err)
		}

		if err := extract.Apply(doc, step.Extract, scope); err != nil {
			return result, fmt.Errorf("step %d: %w", step.Step, err)
		}

		e.log.Debug("Flow step complete",
			logger.String("pulse_id", def.ID),
			logger.Int("step", step.Step),
			logger.String("url", url),
			logger.Int("variables", scope.Len()),
		)
	}

	return result, nil
}

// SortSteps returns a copy of steps ordered by step number. Steps with equal
// numbers keep their declaration order.
func SortSteps(steps []definition.Step) []definition.Step {
	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b definition.Step) int {
		return cmp.Compare(a.Step, b.Step)
	})
	return sorted
}
