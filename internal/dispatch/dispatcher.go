// Package dispatch runs user syncs in the background, outside the request
// that asked for them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dtroode/mdpublish/internal/logger"
	"github.com/dtroode/mdpublish/internal/model"
)

// Syncer brings one user's outputs up to date.
type Syncer interface {
	Sync(ctx context.Context, uid model.UID) (model.SyncResult, error)
}

// Dispatcher keeps at most one task per user. A notification that arrives
// while the user's task runs marks it dirty and the task runs once more
// afterwards, so no change is missed and bursts collapse into one re-run.
type Dispatcher struct {
	syncer Syncer
	sem    *semaphore.Weighted
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	dirty   map[model.UID]bool
	closed  bool
	running sync.WaitGroup
}

// New returns a dispatcher running at most workers users at a time.
func New(syncer Syncer, workers int, logger *logger.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		syncer: syncer,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		dirty:  make(map[model.UID]bool),
	}
}

// Enqueue schedules a sync for uid and returns immediately. It reports false
// once the dispatcher is shutting down.
func (d *Dispatcher) Enqueue(uid model.UID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if _, ok := d.dirty[uid]; ok {
		d.dirty[uid] = true
		return true
	}

	d.dirty[uid] = false
	d.running.Add(1)
	go d.run(uid)
	return true
}

func (d *Dispatcher) run(uid model.UID) {
	defer d.running.Done()

	for {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.mu.Lock()
			delete(d.dirty, uid)
			d.mu.Unlock()
			return
		}
		d.syncOnce(uid)
		d.sem.Release(1)

		d.mu.Lock()
		if d.dirty[uid] && !d.closed {
			d.dirty[uid] = false
			d.mu.Unlock()
			continue
		}
		if d.dirty[uid] {
			d.logger.Warn("Dispatcher: dropping pending re-run at shutdown", "uid", string(uid))
		}
		delete(d.dirty, uid)
		d.mu.Unlock()
		return
	}
}

func (d *Dispatcher) syncOnce(uid model.UID) {
	result, err := d.syncer.Sync(d.ctx, uid)
	switch {
	case err == nil:
		d.logger.Debug("Dispatcher: sync finished",
			"uid", string(uid),
			"run_id", result.RunID,
			"written", result.Written)
	case errors.Is(err, model.ErrNoCredential):
		d.logger.Warn("Dispatcher: notification for unknown user", "uid", string(uid))
	case errors.Is(err, model.ErrAuthExpired):
		d.logger.Warn("Dispatcher: user must re-authorize",
			"uid", string(uid),
			"run_id", result.RunID)
	default:
		d.logger.Error("Dispatcher: sync failed",
			"uid", string(uid),
			"run_id", result.RunID,
			"error", err.Error())
	}
}

// Shutdown stops accepting work and waits for running tasks. When ctx ends
// first the running syncs are canceled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// UserLister enumerates every authorized user.
type UserLister interface {
	List(ctx context.Context) ([]model.UID, error)
}

// EnqueueAll schedules a sync for every user users knows about, which picks up
// changes that happened while the service was down.
func (d *Dispatcher) EnqueueAll(ctx context.Context, users UserLister) (int, error) {
	uids, err := users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	n := 0
	for _, uid := range uids {
		if !d.Enqueue(uid) {
			break
		}
		n++
	}
	return n, nil
}
