package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the per-session queue capacity.
const DefaultQueueSize = 20

// TypeRefresh is the only event type displays receive.
const TypeRefresh = "refresh"

// Reason tells a display which part of its state changed.
type Reason string

const (
	ReasonConfig  Reason = "config"
	ReasonFolders Reason = "folders"
	ReasonImages  Reason = "images"
)

// Event is a refresh hint. It never carries state; displays refetch
// /api/state when they receive one.
type Event struct {
	Type   string `json:"type"`
	Reason Reason `json:"reason"`

	seq uint64 // stamped by Broadcast, process-local
}

// Refresh builds a refresh event for the given reason.
func Refresh(reason Reason) Event {
	return Event{Type: TypeRefresh, Reason: reason}
}

// Session is the handle of one connected display. Its queue is owned by the
// hub until Disconnect.
type Session struct {
	id    uint64
	queue chan Event
	done  chan struct{}
	once  sync.Once
}

// ID returns the session identity. IDs are never reused within a process.
func (s *Session) ID() uint64 { return s.id }

// Events returns the receive side of the session queue.
func (s *Session) Events() <-chan Event { return s.queue }

// Done is closed once the session is finished, either because its loop
// exited or because the hub was closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) finish() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Hub fans refresh events out to every connected display.
type Hub struct {
	mu        sync.Mutex
	sessions  map[uint64]*Session
	nextID    uint64
	seq       uint64
	queueSize int
	closed    bool

	dropped atomic.Uint64
}

// NewHub creates a Hub whose sessions each buffer up to queueSize events.
func NewHub(queueSize int) *Hub {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		sessions:  make(map[uint64]*Session),
		queueSize: queueSize,
	}
}

// Connect registers a new session. On a closed hub the returned session is
// already finished and never receives events.
func (h *Hub) Connect() *Session {
	s := &Session{
		queue: make(chan Event, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s.id = h.nextID
	if h.closed {
		s.finish()
		return s
	}
	h.sessions[s.id] = s
	return s
}

// Disconnect removes the session from the hub. Calling it for a nil, unknown
// or already removed session is a no-op.
func (h *Hub) Disconnect(s *Session) {
	if s == nil {
		return
	}
	s.finish()

	h.mu.Lock()
	if cur, ok := h.sessions[s.id]; ok && cur == s {
		delete(h.sessions, s.id)
	}
	h.mu.Unlock()
}

// Broadcast queues e on every live session without blocking. A full queue
// loses its oldest event. Sessions found finished during the pass are
// removed once the pass is over.
func (h *Hub) Broadcast(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	e.seq = h.seq

	var dead []uint64
	for id, s := range h.sessions {
		if s.finished() {
			dead = append(dead, id)
			continue
		}
		h.enqueue(s, e)
	}

	for _, id := range dead {
		delete(h.sessions, id)
	}
	if len(dead) > 0 {
		slog.Debug("pruned finished sessions", "count", len(dead))
	}
}

// enqueue is called with h.mu held, so the hub is the only sender and at most
// one eviction is needed before the send succeeds.
func (h *Hub) enqueue(s *Session, e Event) {
	for {
		select {
		case s.queue <- e:
			return
		default:
		}
		select {
		case <-s.queue:
			h.dropped.Add(1)
		default:
		}
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dropped returns how many queued events were evicted by backpressure.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close finishes every session and empties the registry. Session loops
// observe it and shut their connections down.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, s := range h.sessions {
		s.finish()
		delete(h.sessions, id)
	}
}
