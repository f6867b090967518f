package ventricle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/watcher"
)

// Reconcile parses every definition file in the directory, replaces the
// registered set, enables a record for each parsed id and disables every
// other known record. Files that fail to parse are logged and skipped.
func (e *Engine) Reconcile() error {
	entries, err := os.ReadDir(e.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read pulse directory: %w", err)
	}

	defs := make(map[string]registered)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(e.cfg.Dir, entry.Name())
		if !definition.IsDefinitionFile(path) {
			continue
		}

		def, err := definition.ParseFile(path)
		if err != nil {
			e.log.Warn("Skipping invalid pulse file", logger.String("path", path), logger.Error(err))
			continue
		}
		if prev, dup := defs[def.ID]; dup {
			e.log.Warn("Duplicate pulse id, later file wins",
				logger.String("pulse_id", def.ID),
				logger.String("path", path),
				logger.String("previous_path", prev.path),
			)
		}
		defs[def.ID] = registered{path: path, def: def}
	}

	e.defsMu.Lock()
	e.defs = defs
	e.defsMu.Unlock()

	e.recordsMu.Lock()
	defer e.recordsMu.Unlock()

	for id, r := range defs {
		if err := e.upsertLocked(r.path, r.def); err != nil {
			e.log.Error("Failed to save pulse record", logger.String("pulse_id", id), logger.Error(err))
		}
	}

	recs, err := e.records.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	for _, rec := range recs {
		if _, seen := defs[rec.ID]; seen {
			continue
		}
		if err := e.disableLocked(rec.ID); err != nil {
			e.log.Error("Failed to disable pulse record", logger.String("pulse_id", rec.ID), logger.Error(err))
		}
	}

	e.log.Info("Reconciled pulse directory",
		logger.String("dir", e.cfg.Dir),
		logger.Int("registered", len(defs)),
	)
	return nil
}

// HandleEvent applies one file event and, for a created or modified file
// that parses, runs that pulse once right away.
func (e *Engine) HandleEvent(ctx context.Context, ev watcher.Event) {
	id, ok := e.applyEvent(ev)
	if !ok {
		return
	}
	e.ExecutePulse(ctx, id)
}

// applyEvent updates the registry for ev. It returns the id to execute,
// if any.
func (e *Engine) applyEvent(ev watcher.Event) (string, bool) {
	if ev.Op == watcher.Removed {
		e.unregisterPath(ev.Path)
		return "", false
	}

	def, err := definition.ParseFile(ev.Path)
	if err != nil {
		e.log.Warn("Ignoring invalid pulse file", logger.String("path", ev.Path), logger.Error(err))
		return "", false
	}

	e.register(ev.Path, def)
	return def.ID, true
}

// register maps path to def. Ids previously mapped to the same path are
// dropped and their records disabled.
func (e *Engine) register(path string, def *definition.Definition) {
	e.defsMu.Lock()
	var stale []string
	for id, r := range e.defs {
		if r.path == path && id != def.ID {
			stale = append(stale, id)
			delete(e.defs, id)
		}
	}
	e.defs[def.ID] = registered{path: path, def: def}
	e.defsMu.Unlock()

	e.recordsMu.Lock()
	defer e.recordsMu.Unlock()

	for _, id := range stale {
		if err := e.disableLocked(id); err != nil {
			e.log.Error("Failed to disable pulse record", logger.String("pulse_id", id), logger.Error(err))
		}
	}
	if err := e.upsertLocked(path, def); err != nil {
		e.log.Error("Failed to save pulse record", logger.String("pulse_id", def.ID), logger.Error(err))
		return
	}

	e.log.Info("Pulse registered", logger.String("pulse_id", def.ID), logger.String("path", path))
}

func (e *Engine) unregisterPath(path string) {
	e.defsMu.Lock()
	var ids []string
	for id, r := range e.defs {
		if r.path == path {
			ids = append(ids, id)
			delete(e.defs, id)
		}
	}
	e.defsMu.Unlock()

	e.recordsMu.Lock()
	defer e.recordsMu.Unlock()

	for _, id := range ids {
		if err := e.disableLocked(id); err != nil {
			e.log.Error("Failed to disable pulse record", logger.String("pulse_id", id), logger.Error(err))
		}
	}
}
