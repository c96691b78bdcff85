package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/ids"
)

// ErrDropped marks an audit append that failed. The triggering business
// operation is never rolled back for it; callers surface it as a warning.
var ErrDropped = errors.New("audit: entry dropped")

// Entry is one append-only audit record. Entries are never updated or
// deleted by the application.
type Entry struct {
	ID              string            `json:"id"`
	VenueID         string            `json:"venue_id"`
	ActorOperatorID string            `json:"actor_operator_id,omitempty"`
	Action          string            `json:"action"`
	EntityType      string            `json:"entity_type"`
	EntityID        string            `json:"entity_id"`
	OldValue        json.RawMessage   `json:"old_value,omitempty"`
	NewValue        json.RawMessage   `json:"new_value,omitempty"`
	IP              string            `json:"ip,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Filter narrows an audit query. Zero values are ignored.
type Filter struct {
	ActorOperatorID string
	Action          string
	From            time.Time
	To              time.Time
	Limit           int
	AfterID         string
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, venueID string, filter Filter) ([]Entry, error)
}

// Recorder writes audit entries and fans them out to live subscribers.
type Recorder struct {
	store  Store
	stream *Stream
	log    *zerolog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder. stream may be nil.
func NewRecorder(store Store, stream *Stream, log *zerolog.Logger) *Recorder {
	return &Recorder{store: store, stream: stream, log: log, now: time.Now}
}

// Record appends one entry. Append failure is logged at error level and
// reported as ErrDropped; the write path stays synchronous so two updates
// to the same entity keep their audit order.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if err := r.store.Append(ctx, &entry); err != nil {
		if r.log != nil {
			r.log.Error().
				Err(err).
				Str("venue_id", entry.VenueID).
				Str("action", entry.Action).
				Str("entity_id", entry.EntityID).
				Msg("audit append failed")
		}
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}
	if r.stream != nil {
		r.stream.Publish(entry)
	}
	return nil
}

// Query returns entries for a venue, newest first, paginated by id cursor.
func (r *Recorder) Query(ctx context.Context, venueID string, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return r.store.Query(ctx, venueID, filter)
}

// Snapshot marshals a value for the old/new columns. Marshal failures
// degrade to a JSON string rather than dropping the entry.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("unserializable: %v", err))
	}
	return data
}
