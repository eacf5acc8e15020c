package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"printproof/internal/domain"
)

// DefaultSubscriberBuffer is the per-subscriber event buffer used when the
// configured size is not positive.
const DefaultSubscriberBuffer = 16

// Subscription is one observer attached to a job's progress stream. Events
// arrive on C. The channel closes when the job publishes a terminal event,
// the observer unsubscribes, or the observer falls too far behind.
type Subscription struct {
	ID    string
	JobID string
	C     <-chan domain.ProgressEvent

	ch     chan domain.ProgressEvent
	closed bool // guarded by the hub mutex
}

// Hub fans progress events out to per-job subscribers. Delivery is
// best-effort to whoever is connected at publish time; there is no replay.
// Slow subscribers are disconnected instead of blocking the publisher.
type Hub struct {
	logger zerolog.Logger
	buffer int

	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
}

// NewHub builds a Hub whose subscriber channels buffer up to buffer events.
func NewHub(logger zerolog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		topics: make(map[string]map[string]*Subscription),
	}
}

// Subscribe attaches a new observer to the given job and returns the
// subscription together with a cancel function. Cancel is safe to call more
// than once and after the stream has already closed.
func (h *Hub) Subscribe(jobID string) (*Subscription, func()) {
	ch := make(chan domain.ProgressEvent, h.buffer)
	sub := &Subscription{
		ID:    uuid.NewString(),
		JobID: jobID,
		C:     ch,
		ch:    ch,
	}

	h.mu.Lock()
	subs, ok := h.topics[jobID]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[jobID] = subs
	}
	subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug().Str("job_id", jobID).Str("subscriber", sub.ID).Msg("progress subscriber attached")

	return sub, func() { h.unsubscribe(jobID, sub.ID) }
}

// Publish delivers an event to every subscriber of the job. A terminal event
// closes all subscriber channels and removes the topic, so publishing after a
// terminal event reaches nobody.
func (h *Hub) Publish(jobID string, ev domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[jobID]
	if len(subs) == 0 {
		if ev.Terminal() {
			delete(h.topics, jobID)
		}
		return
	}

	var slow []*Subscription
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			slow = append(slow, s)
		}
	}

	if ev.Terminal() {
		for _, s := range subs {
			s.closeLocked()
		}
		delete(h.topics, jobID)
		return
	}

	for _, s := range slow {
		h.logger.Warn().Str("job_id", jobID).Str("subscriber", s.ID).Msg("dropping slow progress subscriber")
		delete(subs, s.ID)
		s.closeLocked()
	}
	if len(subs) == 0 {
		delete(h.topics, jobID)
	}
}

// SubscriberCount reports how many observers are attached to the job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[jobID])
}

// TopicCount reports how many jobs currently have at least one observer.
func (h *Hub) TopicCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (h *Hub) unsubscribe(jobID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[jobID]
	s, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.topics, jobID)
	}
	s.closeLocked()
}

// closeLocked closes the subscriber channel once. Callers must hold the hub
// mutex.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
