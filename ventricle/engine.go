// Package ventricle keeps the set of pulse definitions in a directory in
// sync with their persisted records, and runs each pulse when it is due or
// when its file changes.
package ventricle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/flow"
	"github.com/pevans/ventricle/logger"
	"github.com/pevans/ventricle/records"
	"github.com/pevans/ventricle/template"
	"github.com/pevans/ventricle/watcher"
	"github.com/robfig/cron/v3"
)

// RecordStore persists one record per pulse id. GetRecord returns
// records.ErrRecordNotFound for unknown ids.
type RecordStore interface {
	GetRecord(id string) (*records.Record, error)
	ListRecords() ([]records.Record, error)
	SaveRecord(rec *records.Record) error
}

// ItemStore persists pulse items.
type ItemStore interface {
	Exists(pulseID, anchorValue string) (bool, error)
	Add(item feed.Item) error
}

// Runner resolves anchors and runs flows.
type Runner interface {
	ResolveAnchor(ctx context.Context, def *definition.Definition, scope *template.Scope) (string, bool, error)
	Run(ctx context.Context, def *definition.Definition, seed *template.Scope) (*flow.Result, error)
}

// Notifier is called synchronously each time a new item is stored.
type Notifier func(item feed.Item)

// Config configures an Engine.
type Config struct {
	// Dir is the directory holding pulse definition files.
	Dir          string
	TickInterval time.Duration
	// Concurrency bounds how many due pulses a tick runs at once.
	Concurrency int
	Debounce    time.Duration
}

// DefaultConfig returns the scheduler defaults for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:          dir,
		TickInterval: time.Minute,
		Concurrency:  1,
		Debounce:     watcher.DefaultDebounce,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithNotifier sets the callback for new items.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type registered struct {
	path string
	def  *definition.Definition
}

// Engine is the pulse registry and scheduler.
type Engine struct {
	cfg     Config
	records RecordStore
	items   ItemStore
	runner  Runner
	notify  Notifier
	log     logger.Logger
	now     func() time.Time

	defsMu sync.RWMutex
	defs   map[string]registered

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	// recordsMu serializes read-modify-write cycles on records.
	recordsMu sync.Mutex

	ticking atomic.Bool

	cancel  context.CancelFunc
	cron    *cron.Cron
	watcher *watcher.Watcher
	wg      sync.WaitGroup
}

// New creates an Engine. Nothing runs until Start, Reconcile, Tick or
// ExecutePulse is called.
func New(cfg Config, recs RecordStore, items ItemStore, runner Runner, opts ...Option) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	e := &Engine{
		cfg:      cfg,
		records:  recs,
		items:    items,
		runner:   runner,
		log:      logger.NewNop(),
		now:      time.Now,
		defs:     make(map[string]registered),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start reconciles the directory, then watches it and ticks on the
// configured interval until ctx is cancelled or Stop is called. The first
// tick runs immediately.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Reconcile(); err != nil {
		return err
	}

	w, err := watcher.New(e.cfg.Dir, watcher.Options{
		Debounce: e.cfg.Debounce,
		Filter:   definition.IsDefinitionFile,
		Logger:   e.log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.watcher = w

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.Run(ctx, func(ev watcher.Event) {
			id, ok := e.applyEvent(ev)
			if !ok {
				return
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.ExecutePulse(ctx, id)
			}()
		})
	}()

	cl := cronLogger{log: e.log}
	e.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	schedule := "@every " + e.cfg.TickInterval.String()
	if _, err := e.cron.AddFunc(schedule, func() { e.Tick(ctx) }); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("failed to schedule tick: %w", err)
	}
	e.cron.Start()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Tick(ctx)
	}()

	e.log.Info("Pulse engine started",
		logger.String("dir", e.cfg.Dir),
		logger.Duration("tick_interval", e.cfg.TickInterval),
		logger.Int("concurrency", e.cfg.Concurrency),
	)
	return nil
}

// Stop cancels in-progress work and waits for it to return, or for ctx to
// expire.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	var cronDone context.Context
	if e.cron != nil {
		cronDone = e.cron.Stop()
	}
	if e.watcher != nil {
		e.watcher.Close()
	}

	done := make(chan struct{})
	go func() {
		if cronDone != nil {
			<-cronDone.Done()
		}
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info("Pulse engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine did not stop in time: %w", ctx.Err())
	}
}

// Definition returns the registered definition for id and its file path.
func (e *Engine) Definition(id string) (*definition.Definition, string, bool) {
	e.defsMu.RLock()
	defer e.defsMu.RUnlock()

	r, ok := e.defs[id]
	return r.def, r.path, ok
}

// IDs returns the registered definition ids, sorted.
func (e *Engine) IDs() []string {
	e.defsMu.RLock()
	ids := make([]string, 0, len(e.defs))
	for id := range e.defs {
		ids = append(ids, id)
	}
	e.defsMu.RUnlock()

	slices.Sort(ids)
	return ids
}

// updateRecord applies fn to the stored record for id and saves it. It
// returns records.ErrRecordNotFound if no record exists.
func (e *Engine) updateRecord(id string, fn func(rec *records.Record)) error {
	e.recordsMu.Lock()
	defer e.recordsMu.Unlock()

	rec, err := e.records.GetRecord(id)
	if err != nil {
		return err
	}
	fn(rec)
	return e.records.SaveRecord(rec)
}

// upsertLocked creates or refreshes the record for def. Callers hold
// recordsMu.
func (e *Engine) upsertLocked(path string, def *definition.Definition) error {
	rec, err := e.records.GetRecord(def.ID)
	switch {
	case errors.Is(err, records.ErrRecordNotFound):
		rec = &records.Record{ID: def.ID, AddedAt: e.now()}
	case err != nil:
		return fmt.Errorf("failed to load record %s: %w", def.ID, err)
	}

	rec.Name = def.Name
	rec.Heartbeat = def.Heartbeat
	rec.FilePath = path
	rec.Enabled = true
	return e.records.SaveRecord(rec)
}

// disableLocked marks the record for id disabled. Missing records are
// ignored. Callers hold recordsMu.
func (e *Engine) disableLocked(id string) error {
	rec, err := e.records.GetRecord(id)
	if errors.Is(err, records.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if !rec.Enabled {
		return nil
	}

	rec.Enabled = false
	if err := e.records.SaveRecord(rec); err != nil {
		return err
	}
	e.log.Info("Pulse disabled", logger.String("pulse_id", id))
	return nil
}

type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
