// Package feed announces committed writes to connected dashboards.
package feed

import (
	"sync"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

// Recorder receives feed counters. *metrics.Metrics implements it.
type Recorder interface {
	RecordChange(table string)
	RecordDropped()
}

// Mirror copies events to an external broker. Enqueue must not block.
type Mirror interface {
	Enqueue(ev models.ChangeEvent)
}

// Hub fans change events out to in-process subscribers. A subscriber whose
// buffer is full misses the event; dashboards re-fetch whole tables, so a
// later event brings them up to date.
type Hub struct {
	logger   *logger.Logger
	recorder Recorder
	mirror   Mirror

	mu     sync.RWMutex
	subs   map[uint64]chan models.ChangeEvent
	nextID uint64
	closed bool
}

var _ models.ChangePublisher = (*Hub)(nil)

func NewHub(recorder Recorder, mirror Mirror, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		logger:   log.Named("feed"),
		recorder: recorder,
		mirror:   mirror,
		subs:     make(map[uint64]chan models.ChangeEvent),
	}
}

func (h *Hub) Publish(ev models.ChangeEvent) {
	if h.recorder != nil {
		h.recorder.RecordChange(ev.Table)
	}
	if h.mirror != nil {
		h.mirror.Enqueue(ev)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("Dropping change event for slow subscriber", "subscriber", id, "table", ev.Table)
			if h.recorder != nil {
				h.recorder.RecordDropped()
			}
		}
	}
}

// Subscribe returns a channel of events and a cancel function that closes
// it. The channel is also closed when the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan models.ChangeEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.ChangeEvent, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
