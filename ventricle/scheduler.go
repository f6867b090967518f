package ventricle

import (
	"context"
	"sync"
	"time"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/records"
)

// Tick runs every due pulse once. It returns false without doing anything
// if another tick is still running.
func (e *Engine) Tick(ctx context.Context) bool {
	if !e.ticking.CompareAndSwap(false, true) {
		e.log.Debug("Tick skipped, previous tick still running")
		return false
	}
	defer e.ticking.Store(false)

	recs, err := e.records.ListRecords()
	if err != nil {
		e.log.Error("Failed to list pulse records", logger.Error(err))
		return true
	}

	due := filterDue(recs, e.now())
	if len(due) == 0 {
		return true
	}

	e.log.Debug("Running due pulses", logger.Int("count", len(due)))

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup

dispatch:
	for _, rec := range due {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.ExecutePulse(ctx, id)
		}(rec.ID)
	}

	wg.Wait()
	return true
}

// filterDue returns the enabled records whose heartbeat has elapsed.
func filterDue(recs []records.Record, now time.Time) []records.Record {
	var due []records.Record
	for _, rec := range recs {
		if isDue(rec, now) {
			due = append(due, rec)
		}
	}
	return due
}

// isDue reports whether rec should run at now. A record that was never
// checked is always due.
func isDue(rec records.Record, now time.Time) bool {
	if !rec.Enabled {
		return false
	}
	if rec.LastChecked == nil {
		return true
	}

	next := rec.LastChecked.Add(definition.HeartbeatDuration(rec.Heartbeat))
	return !now.Before(next)
}
