package guard

import (
	"context"
	"sync"
	"time"

	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

// DefaultMaxClients bounds the guards kept in memory.
const DefaultMaxClients = 10000

// Factory builds an unrestored guard for a client key.
type Factory func(key string) *Guard

type entry struct {
	guard    *Guard
	lastSeen time.Time
}

// Registry hands out one guard per client and suspends guards of clients
// that went quiet. A suspended client's durable record stays in the state
// store and is picked up again by Restore on its next request.
type Registry struct {
	factory     Factory
	sched       Scheduler
	idleTimeout time.Duration
	maxClients  int
	logger      *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	sweeper Task
}

// NewRegistry creates a registry. A maxClients of zero means
// DefaultMaxClients; past the limit the least recently seen guard is
// suspended to make room.
func NewRegistry(factory Factory, sched Scheduler, idleTimeout time.Duration, maxClients int, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &Registry{
		factory:     factory,
		sched:       sched,
		idleTimeout: idleTimeout,
		maxClients:  maxClients,
		logger:      log.Named("guards"),
		entries:     make(map[string]*entry),
	}
}

// Get returns the guard of clientID, restoring it from the state store on
// first use. The guard stays registered.
func (r *Registry) Get(ctx context.Context, clientID string) (*Guard, error) {
	if g := r.lookup(clientID); g != nil {
		return g, nil
	}
	g := r.factory(clientID)
	if err := g.Restore(ctx); err != nil {
		return nil, err
	}
	return r.adopt(clientID, g), nil
}

// Peek is Get for read-only requests. A client with nothing persisted gets
// a throwaway guard that is not registered, so callers without state do not
// grow the registry.
func (r *Registry) Peek(ctx context.Context, clientID string) (*Guard, error) {
	if g := r.lookup(clientID); g != nil {
		return g, nil
	}
	g := r.factory(clientID)
	if err := g.Restore(ctx); err != nil {
		return nil, err
	}
	if g.empty() {
		return g, nil
	}
	return r.adopt(clientID, g), nil
}

func (r *Registry) lookup(clientID string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[clientID]; ok {
		e.lastSeen = r.sched.Now()
		return e.guard
	}
	return nil
}

func (r *Registry) adopt(clientID string, g *Guard) *Guard {
	r.mu.Lock()
	if e, ok := r.entries[clientID]; ok {
		// Lost the race to a concurrent request from the same client.
		e.lastSeen = r.sched.Now()
		r.mu.Unlock()
		g.Suspend()
		return e.guard
	}
	var evicted *Guard
	if len(r.entries) >= r.maxClients {
		evicted = r.evictOldestLocked()
	}
	r.entries[clientID] = &entry{guard: g, lastSeen: r.sched.Now()}
	r.mu.Unlock()

	if evicted != nil {
		evicted.Suspend()
		r.logger.Warn("Client limit reached, suspended least recent client", "limit", r.maxClients)
	}
	return g
}

// evictOldestLocked requires r.mu.
func (r *Registry) evictOldestLocked() *Guard {
	var oldestID string
	var oldest *entry
	for id, e := range r.entries {
		if oldest == nil || e.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, e
		}
	}
	if oldest == nil {
		return nil
	}
	delete(r.entries, oldestID)
	return oldest.guard
}

// Start sweeps idle guards every interval.
func (r *Registry) Start(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sweeper != nil || r.idleTimeout <= 0 {
		return
	}
	r.sweeper = r.sched.Every(interval, r.evictIdle)
}

func (r *Registry) evictIdle() {
	cutoff := r.sched.Now().Add(-r.idleTimeout)

	var idle []*Guard
	r.mu.Lock()
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.guard)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, g := range idle {
		g.Suspend()
	}
	if len(idle) > 0 {
		r.logger.Debug("Evicted idle clients", "count", len(idle))
	}
}

// Len returns the number of live guards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the sweeper and suspends every guard.
func (r *Registry) Close() {
	r.mu.Lock()
	sweeper := r.sweeper
	r.sweeper = nil
	guards := make([]*Guard, 0, len(r.entries))
	for _, e := range r.entries {
		guards = append(guards, e.guard)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	if sweeper != nil {
		sweeper.Stop()
	}
	for _, g := range guards {
		g.Suspend()
	}
}
