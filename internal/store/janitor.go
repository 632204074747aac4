// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/terraatlas/terra/pkg/errutil"
)

// DefaultPurgeInterval is how often the Janitor deletes expired sessions.
const DefaultPurgeInterval = 10 * time.Minute

// ExpiredSessionPurger deletes expired sessions and reports how many went.
type ExpiredSessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PurgeObserver is told how many sessions each sweep removed.
type PurgeObserver interface {
	SessionsPurged(n int64)
}

// Janitor periodically purges expired sessions. Lookups already treat
// expired sessions as absent, so the sweep only reclaims rows.
type Janitor struct {
	purger   ExpiredSessionPurger
	interval time.Duration
	logger   *slog.Logger
	observer PurgeObserver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithPurgeInterval overrides DefaultPurgeInterval. Non-positive values are ignored.
func WithPurgeInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithPurgeObserver registers an observer for sweep counts.
func WithPurgeObserver(o PurgeObserver) JanitorOption {
	return func(j *Janitor) { j.observer = o }
}

// WithJanitorLogger sets the logger.
func WithJanitorLogger(l *slog.Logger) JanitorOption {
	return func(j *Janitor) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewJanitor creates a Janitor over purger.
func NewJanitor(purger ExpiredSessionPurger, opts ...JanitorOption) (*Janitor, error) {
	if purger == nil {
		return nil, oops.Code("JANITOR_INVALID").Errorf("purger is required")
	}
	j := &Janitor{
		purger:   purger,
		interval: DefaultPurgeInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Sweep runs a single purge.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.purger.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	if j.observer != nil {
		j.observer.SessionsPurged(n)
	}
	if n > 0 {
		j.logger.DebugContext(ctx, "purged expired sessions", "count", n)
	}
	return n, nil
}

// Start launches the sweep loop. Calling Start on a running Janitor is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})
	go j.run(ctx, j.done)
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				errutil.LogError(j.logger, "session purge failed", err)
			}
		}
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
