package audit

import (
	"context"
	"sync"
)

// Stream fan-outs audit entries to all active subscribers (SSE clients
// watching a venue's security feed).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	venueID string
	ch      chan Entry
}

// NewStream initialises an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for one venue's entries and returns the
// channel which will receive them. The channel is closed when the provided
// context ends.
func (s *Stream) Subscribe(ctx context.Context, venueID string) <-chan Entry {
	ch := make(chan Entry, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{venueID: venueID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the entry to subscribers of its venue.
func (s *Stream) Publish(entry Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.venueID != entry.VenueID {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			// Drop when subscriber is slow to avoid blocking the write path.
		}
	}
}
