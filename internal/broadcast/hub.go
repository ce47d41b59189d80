package broadcast

import (
	"context"
	"sync"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/metrics"
	"potion_master/internal/models"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-observer queue length.
const DefaultBuffer = 64

// StatusSource produces the hardware snapshot for periodic broadcasts.
type StatusSource interface {
	Status() models.HardwareStatus
}

// Observer is one subscriber. Its channel is closed when it is removed,
// either by Unsubscribe or because it fell behind.
type Observer struct {
	ID   uuid.UUID
	Name string
	ch   chan models.Event
}

// Events is the observer's feed.
func (o *Observer) Events() <-chan models.Event {
	return o.ch
}

// Hub fans events out to every observer. Delivery never blocks the
// publisher: an observer whose queue is full is dropped and the others
// keep receiving.
type Hub struct {
	buffer  int
	log     *logger.Logger
	metrics metrics.Collector

	mu        sync.Mutex
	observers map[uuid.UUID]*Observer
}

func NewHub(buffer int, log *logger.Logger, m metrics.Collector) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Hub{
		buffer:    buffer,
		log:       log,
		metrics:   m,
		observers: make(map[uuid.UUID]*Observer),
	}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe(name string) *Observer {
	o := &Observer{ID: uuid.New(), Name: name, ch: make(chan models.Event, h.buffer)}

	h.mu.Lock()
	h.observers[o.ID] = o
	n := len(h.observers)
	h.mu.Unlock()

	h.metrics.SetObservers(n)
	h.log.Infow("observer_subscribed", "observer", name, "id", o.ID, "total", n)
	return o
}

// Unsubscribe removes o. Safe to call more than once.
func (h *Hub) Unsubscribe(o *Observer) {
	h.mu.Lock()
	_, ok := h.observers[o.ID]
	if ok {
		delete(h.observers, o.ID)
		close(o.ch)
	}
	n := len(h.observers)
	h.mu.Unlock()

	if ok {
		h.metrics.SetObservers(n)
		h.log.Infow("observer_unsubscribed", "observer", o.Name, "id", o.ID, "total", n)
	}
}

// Publish delivers one event to every observer. Events published from one
// goroutine arrive at each observer in publish order.
func (h *Hub) Publish(kind models.EventKind, payload any) {
	ev := models.NewEvent(kind, payload)

	h.mu.Lock()
	var dropped []*Observer
	for id, o := range h.observers {
		select {
		case o.ch <- ev:
		default:
			delete(h.observers, id)
			close(o.ch)
			dropped = append(dropped, o)
		}
	}
	n := len(h.observers)
	h.mu.Unlock()

	for _, o := range dropped {
		h.metrics.IncObserverDropped()
		h.log.Warnw("observer_dropped", "observer", o.Name, "id", o.ID, "event", kind)
	}
	if len(dropped) > 0 {
		h.metrics.SetObservers(n)
	}
}

// Send delivers one event to a single observer, e.g. the initial snapshot.
// It reports false when the observer is gone or its queue is full.
func (h *Hub) Send(o *Observer, kind models.EventKind, payload any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.observers[o.ID]; !ok {
		return false
	}
	select {
	case o.ch <- models.NewEvent(kind, payload):
		return true
	default:
		return false
	}
}

// Count returns the number of live observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Run drives the two periodic publications: a full snapshot every
// statusEvery, and a weight-only update every weightEvery while a pump is open.
func (h *Hub) Run(ctx context.Context, src StatusSource, statusEvery, weightEvery time.Duration) {
	status := time.NewTicker(statusEvery)
	weight := time.NewTicker(weightEvery)
	defer status.Stop()
	defer weight.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-status.C:
			if h.Count() == 0 {
				continue
			}
			h.Publish(models.EventHardwareStatus, src.Status())
		case <-weight.C:
			if h.Count() == 0 {
				continue
			}
			st := src.Status()
			if !st.IsPouring {
				continue
			}
			h.Publish(models.EventWeightUpdate, models.WeightUpdate{
				Weight:    st.Weight,
				Timestamp: st.Timestamp.UnixMilli(),
			})
		}
	}
}

// Close drops every observer, closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, o := range h.observers {
		delete(h.observers, id)
		close(o.ch)
	}
	h.mu.Unlock()
	h.metrics.SetObservers(0)
}
