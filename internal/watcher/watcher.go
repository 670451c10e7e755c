package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zgpcy/azure-lro-poller/internal/checkpoint"
	"github.com/zgpcy/azure-lro-poller/internal/clock"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/lro"
	"golang.org/x/sync/errgroup"
)

// Defaults for Options
const (
	DefaultMaxConcurrent  = 8
	DefaultRescanInterval = 30 * time.Second
	DefaultDoneRetention  = time.Hour
)

// Snapshot is the last observed state of one watched operation
type Snapshot struct {
	ID        string          `json:"id"`
	Strategy  string          `json:"strategy,omitempty"`
	Status    string          `json:"status,omitempty"`
	Polls     int             `json:"polls"`
	Done      bool            `json:"done"`
	UpdatedAt time.Time       `json:"updated_at"`
	Error     string          `json:"error,omitempty"`
	Failure   *lro.ErrorInfo  `json:"failure,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	// Resumption failed permanently; the checkpoint is left for an operator
	broken bool
}

// Options configures a Watcher. Zero values select the defaults.
type Options struct {
	MaxConcurrent  int
	RescanInterval time.Duration
	DoneRetention  time.Duration // how long finished snapshots stay visible
	Clock          clock.Clock
}

// Watcher resumes every checkpointed operation and polls it to completion,
// saving the resume token after each update and deleting the checkpoint once
// the operation is terminal
type Watcher struct {
	d      *lro.Dispatcher
	store  checkpoint.Store
	logger *logger.Logger
	opts   Options

	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	active    map[string]bool
	ready     atomic.Bool
}

// New creates a watcher over store
func New(d *lro.Dispatcher, store checkpoint.Store, log *logger.Logger, opts Options) *Watcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = DefaultRescanInterval
	}
	if opts.DoneRetention <= 0 {
		opts.DoneRetention = DefaultDoneRetention
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Watcher{
		d:         d,
		store:     store,
		logger:    log,
		opts:      opts,
		snapshots: make(map[string]*Snapshot),
		active:    make(map[string]bool),
	}
}

// Run scans the store immediately and then every RescanInterval until ctx is
// done. It waits for in-flight operations to stop before returning.
func (w *Watcher) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(w.opts.MaxConcurrent)

	ticker := time.NewTicker(w.opts.RescanInterval)
	defer ticker.Stop()

	w.logger.Info("Watcher started",
		"max_concurrent", w.opts.MaxConcurrent,
		"rescan_interval", w.opts.RescanInterval.String())

	for {
		w.scan(ctx, &g)
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watcher, waiting for in-flight operations")
			return g.Wait()
		case <-ticker.C:
		}
	}
}

// scan lists the store and schedules every checkpoint not already watched.
// g.Go blocks while MaxConcurrent operations are running.
func (w *Watcher) scan(ctx context.Context, g *errgroup.Group) {
	tokens, err := w.store.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to list checkpoints", "error", err)
		}
		return
	}
	if !w.ready.Swap(true) {
		w.logger.Info("Initial checkpoint scan complete", "checkpoints", len(tokens))
	}
	w.prune()

	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if !w.claim(id) {
			continue
		}
		g.Go(func() error {
			w.watch(ctx, id)
			return nil
		})
	}
}

// claim marks id as watched unless it already is, finished, or broken
func (w *Watcher) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[id] {
		return false
	}
	if s, ok := w.snapshots[id]; ok && (s.Done || s.broken) {
		return false
	}
	w.active[id] = true
	return true
}

func (w *Watcher) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, id)
}

// watch drives one operation until it is terminal, fails, or ctx is done.
// The token is loaded here rather than taken from the scan listing, since
// g.Go may have waited while an earlier watch saved a newer one.
func (w *Watcher) watch(ctx context.Context, id string) {
	defer w.release(id)
	log := w.logger.WithFields("checkpoint_id", id)

	token, err := w.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) || ctx.Err() != nil {
			log.Debug("Checkpoint gone before it was resumed", "error", err)
			return
		}
		log.Error("Failed to load checkpoint", "error", err)
		w.update(id, func(s *Snapshot) { s.Error = err.Error() })
		return
	}

	desc := lro.Descriptor{Name: "checkpoint/" + id, Shape: lro.ShapeStreamed, ExpectsBody: true}
	op, err := lro.Resume[json.RawMessage](w.d, token, desc)
	if err != nil {
		log.Error("Failed to resume operation", "error", err)
		w.update(id, func(s *Snapshot) {
			s.Error = err.Error()
			s.broken = errors.Is(err, lro.ErrInvalidResumeToken)
		})
		return
	}
	w.update(id, func(s *Snapshot) {
		s.Strategy = string(op.Kind())
		s.Status = op.Status()
		s.Error = ""
	})

	for upd, err := range op.Updates(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Polling failed, will resume from the last checkpoint on the next scan", "error", err)
			w.update(id, func(s *Snapshot) { s.Error = err.Error() })
			return
		}

		if upd.IsTerminal() {
			if err := w.store.Delete(ctx, id); err != nil {
				log.Error("Failed to delete checkpoint", "error", err)
			}
			w.update(id, func(s *Snapshot) {
				s.Polls++
				s.Status = upd.Status
				s.Done = true
				s.Failure = upd.Failure
				if upd.Value != nil {
					s.Result = *upd.Value
				}
			})
			log.Info("Operation finished", "status", upd.Status)
			return
		}

		next, err := op.ResumeToken()
		if err == nil {
			err = w.store.Save(ctx, id, next)
		}
		if err != nil && ctx.Err() == nil {
			log.Warn("Failed to save checkpoint", "error", err)
		}
		w.update(id, func(s *Snapshot) {
			s.Polls++
			s.Status = upd.Status
		})
	}
}

func (w *Watcher) update(id string, fn func(*Snapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.snapshots[id]
	if !ok {
		s = &Snapshot{ID: id}
		w.snapshots[id] = s
	}
	fn(s)
	s.UpdatedAt = w.opts.Clock.Now()
}

// prune drops finished snapshots older than DoneRetention
func (w *Watcher) prune() {
	cutoff := w.opts.Clock.Now().Add(-w.opts.DoneRetention)
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, s := range w.snapshots {
		if s.Done && s.UpdatedAt.Before(cutoff) {
			delete(w.snapshots, id)
		}
	}
}

// Ready reports whether the first scan of the store succeeded
func (w *Watcher) Ready() bool {
	return w.ready.Load()
}

// Snapshots returns copies of all snapshots ordered by id
func (w *Watcher) Snapshots() []Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Snapshot, 0, len(w.snapshots))
	for _, s := range w.snapshots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns the snapshot for id
func (w *Watcher) Snapshot(id string) (Snapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.snapshots[id]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}
