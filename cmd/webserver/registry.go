package main

import (
	"context"
	"sync"
	"time"

	"pdfquiz"

	"go.uber.org/zap"
)

// registry maps browser session ids to their quiz controllers
type registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	ttl     time.Duration
	factory func() *pdfquiz.Controller
	log     *zap.SugaredLogger
	now     func() time.Time
}

type registryEntry struct {
	ctrl     *pdfquiz.Controller
	lastSeen time.Time
}

func newRegistry(ttl time.Duration, factory func() *pdfquiz.Controller, log *zap.SugaredLogger) *registry {
	return &registry{
		entries: make(map[string]*registryEntry),
		ttl:     ttl,
		factory: factory,
		log:     log,
		now:     time.Now,
	}
}

// get returns the controller for id, creating one on first use.
func (r *registry) get(id string) *pdfquiz.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		e = &registryEntry{ctrl: r.factory()}
		r.entries[id] = e
		r.log.Debugw("session created", "session", id, "active", len(r.entries))
	}
	e.lastSeen = r.now()
	return e.ctrl
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sweep closes controllers idle for longer than the ttl and returns how many were evicted.
func (r *registry) sweep() int {
	r.mu.Lock()
	cutoff := r.now().Add(-r.ttl)
	var idle []*pdfquiz.Controller
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.ctrl)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, ctrl := range idle {
		ctrl.Close()
	}
	if len(idle) > 0 {
		r.log.Infow("evicted idle sessions", "count", len(idle))
	}
	return len(idle)
}

// run sweeps periodically until ctx is done, then closes every controller.
func (r *registry) run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *registry) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Close()
	}
}
