package ventricle

import (
	"context"
	"errors"
	"fmt"

	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/records"
)

// Status is the result of one pulse execution.
type Status string

const (
	// StatusSkipped means the pulse is unknown, unrecorded or disabled.
	StatusSkipped Status = "skipped"
	// StatusInFlight means the pulse was already executing.
	StatusInFlight  Status = "in_flight"
	StatusUnchanged Status = "unchanged"
	StatusCreated   Status = "created"
	// StatusDuplicate means the anchor changed but an item for that anchor
	// value already exists.
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// Outcome reports what ExecutePulse did. Err holds the error that ended a
// failed execution; it is logged, never returned.
type Outcome struct {
	Status Status     `json:"status"`
	Item   *feed.Item `json:"item,omitempty"`
	Err    error      `json:"-"`
}

func (e *Engine) acquire(id string) bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()

	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	delete(e.inFlight, id)
}

// ExecutePulse checks one pulse's anchor and, if it changed, runs its flow
// and stores a new item unless one already exists for that anchor value.
// Calls for an id that is already executing return immediately.
func (e *Engine) ExecutePulse(ctx context.Context, id string) (out Outcome) {
	if !e.acquire(id) {
		e.log.Debug("Pulse already executing", logger.String("pulse_id", id))
		return Outcome{Status: StatusInFlight}
	}
	defer e.release(id)

	log := e.log.With(logger.String("pulse_id", id))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("Pulse execution panicked", logger.Error(err))
			out = Outcome{Status: StatusFailed, Err: err}
		}
	}()

	fail := func(msg string, err error) Outcome {
		log.Warn(msg, logger.Error(err))
		return Outcome{Status: StatusFailed, Err: err}
	}

	def, _, ok := e.Definition(id)
	if !ok {
		log.Debug("Pulse not registered")
		return Outcome{Status: StatusSkipped}
	}

	rec, err := e.records.GetRecord(id)
	if errors.Is(err, records.ErrRecordNotFound) {
		return Outcome{Status: StatusSkipped}
	}
	if err != nil {
		return fail("Failed to load pulse record", err)
	}
	if !rec.Enabled {
		return Outcome{Status: StatusSkipped}
	}

	// Stamped before any network work so a failing pulse still waits a
	// full heartbeat before the next attempt.
	now := e.now()
	if err := e.updateRecord(id, func(r *records.Record) { r.LastChecked = &now }); err != nil {
		return fail("Failed to stamp pulse record", err)
	}

	anchor, found, err := e.runner.ResolveAnchor(ctx, def, nil)
	if err != nil {
		return fail("Failed to resolve anchor", err)
	}
	if !found {
		log.Debug("Anchor resolved to nothing")
		return Outcome{Status: StatusUnchanged}
	}
	if rec.LastAnchorValue != nil && *rec.LastAnchorValue == anchor {
		log.Debug("Anchor unchanged", logger.String("anchor", anchor))
		return Outcome{Status: StatusUnchanged}
	}

	result, err := e.runner.Run(ctx, def, Seed(anchor))
	if err != nil {
		return fail("Flow failed", err)
	}

	item := NewItem(def, anchor, result, now)

	exists, err := e.items.Exists(id, anchor)
	if err != nil {
		return fail("Failed to check for existing item", err)
	}

	out = Outcome{Status: StatusDuplicate}
	if !exists {
		if err := e.items.Add(item); err != nil {
			return fail("Failed to store item", err)
		}
		out = Outcome{Status: StatusCreated, Item: &item}
		log.Info("New pulse item",
			logger.String("item_id", item.ID.String()),
			logger.String("anchor", anchor),
			logger.String("title", item.Title),
		)
		if e.notify != nil {
			e.notify(item)
		}
	} else {
		log.Debug("Item for anchor already exists", logger.String("anchor", anchor))
	}

	if err := e.updateRecord(id, func(r *records.Record) { r.LastAnchorValue = &anchor }); err != nil {
		return fail("Failed to save anchor value", err)
	}

	return out
}
