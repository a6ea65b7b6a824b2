package status

import (
	log "log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	Info      Category = "info"
	Success   Category = "success"
	Error     Category = "error"
	Actuator  Category = "actuator"
	Listening Category = "listening"
)

type Event struct {
	ID       string    `json:"id"`
	At       time.Time `json:"timestamp"`
	Message  string    `json:"message"`
	Category Category  `json:"type"`
}

// Sink is a bounded, best-effort event queue. Publish never blocks; events
// that do not fit are dropped and counted. A nil *Sink discards everything.
type Sink struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewSink(size int) *Sink {
	if size <= 0 {
		size = 64
	}
	return &Sink{ch: make(chan Event, size)}
}

func (s *Sink) Publish(cat Category, msg string) {
	if s == nil {
		return
	}

	ev := Event{
		ID:       uuid.NewString(),
		At:       time.Now(),
		Message:  msg,
		Category: cat,
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
		log.Debug("Status event dropped", "msg", msg)
	}
}

// Events is nil for a nil Sink; receiving from it blocks forever.
func (s *Sink) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Sink) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}
