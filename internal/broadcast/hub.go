// Package broadcast fans location and ride events out to connected
// subscribers. The hub is an injected, explicitly-owned registry: created at
// service start, closed at shutdown, passed to whoever needs to publish.
package broadcast

import (
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

type EventType string

const (
	EventDriverMarker EventType = "driver_marker_update"
	EventMeterStarted EventType = "meter_started"
	EventRideStatus   EventType = "ride_status"
)

type Event struct {
	Type      EventType         `json:"type"`
	RideID    string            `json:"ride_id,omitempty"`
	DriverID  string            `json:"driver_id,omitempty"`
	Status    models.RideStatus `json:"status,omitempty"`
	Location  *models.Coord     `json:"location,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Filter narrows a subscription to one ride or one driver. Zero value means
// receive everything the role is entitled to.
type Filter struct {
	RideID   string
	DriverID string
}

// Subscriber is one connected client. Events arrive on a buffered channel in
// publish order; a subscriber that stops draining is pruned, never reordered.
type Subscriber struct {
	id     uint64
	role   Role
	filter Filter
	hub    *Hub

	mu     sync.Mutex
	closed bool
	ch     chan Event
}

// Events is the receive side; it is closed when the subscriber is pruned or
// the hub shuts down.
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) Close() { s.hub.remove(s.id) }

// trySend delivers without blocking. The per-subscriber mutex makes send and
// close mutually exclusive, so a prune can never race a delivery.
func (s *Subscriber) trySend(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscriber) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscriber) matches(ev Event) bool {
	if ev.Type == EventDriverMarker {
		// position markers go to passengers only
		if s.role != RolePassenger {
			return false
		}
		return s.filter.DriverID == "" || s.filter.DriverID == ev.DriverID
	}
	return s.filter.RideID == "" || s.filter.RideID == ev.RideID
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	nextID uint64
	buffer int
	closed bool
}

// NewHub creates a hub whose subscribers buffer up to buffer events before
// being considered dead.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uint64]*Subscriber), buffer: buffer}
}

func (h *Hub) Subscribe(role Role, f Filter) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscriber{
		id:     h.nextID,
		role:   role,
		filter: f,
		hub:    h,
		ch:     make(chan Event, h.buffer),
	}
	if h.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	observability.SubscribersActive.Set(float64(len(h.subs)))
	return sub
}

// Publish delivers the event to every matching subscriber, best-effort. A
// full or closed subscriber is pruned on the failed delivery; the sender is
// never blocked.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.matches(ev) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if !sub.trySend(ev) {
			observability.BroadcastDropped.Inc()
			h.remove(sub.id)
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		sub.markClosed()
		observability.SubscribersActive.Set(float64(n))
	}
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close tears the hub down and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscriber)
	h.closed = true
	h.mu.Unlock()
	for _, sub := range subs {
		sub.markClosed()
	}
	observability.SubscribersActive.Set(0)
}
