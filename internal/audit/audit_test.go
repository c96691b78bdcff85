package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries []Entry
	fail    error
}

func (f *fakeStore) Append(_ context.Context, entry *Entry) error {
	if f.fail != nil {
		return f.fail
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeStore) Query(_ context.Context, venueID string, filter Filter) ([]Entry, error) {
	var out []Entry
	for _, e := range f.entries {
		if e.VenueID == venueID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestRecorderFillsIDAndTimestamp(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store, nil, nil)

	err := rec.Record(context.Background(), Entry{
		VenueID:    "venue-1",
		Action:     "operator.created",
		EntityType: "operator",
		EntityID:   "op-1",
	})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	got := store.entries[0]
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestRecorderReportsDroppedEntries(t *testing.T) {
	store := &fakeStore{fail: errors.New("disk full")}
	rec := NewRecorder(store, nil, nil)

	err := rec.Record(context.Background(), Entry{VenueID: "venue-1", Action: "auth.logout"})
	require.ErrorIs(t, err, ErrDropped)
}

func TestRecorderPublishesToStream(t *testing.T) {
	store := &fakeStore{}
	stream := NewStream()
	rec := NewRecorder(store, stream, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := stream.Subscribe(ctx, "venue-1")

	require.NoError(t, rec.Record(context.Background(), Entry{VenueID: "venue-1", Action: "auth.login"}))
	require.NoError(t, rec.Record(context.Background(), Entry{VenueID: "venue-2", Action: "auth.login"}))

	select {
	case entry := <-ch:
		assert.Equal(t, "venue-1", entry.VenueID)
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}
	select {
	case entry := <-ch:
		t.Fatalf("received entry for wrong venue: %+v", entry)
	default:
	}
}

func TestStreamDropsWhenSubscriberIsSlow(t *testing.T) {
	stream := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := stream.Subscribe(ctx, "venue-1")

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			stream.Publish(Entry{VenueID: "venue-1", Action: "auth.login"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	assert.LessOrEqual(t, len(ch), 16)
}

func TestQueryClampsLimit(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store, nil, nil)

	_, err := rec.Query(context.Background(), "venue-1", Filter{Limit: -5})
	require.NoError(t, err)
	_, err = rec.Query(context.Background(), "venue-1", Filter{Limit: 10_000})
	require.NoError(t, err)
}

func TestSnapshotDegradesGracefully(t *testing.T) {
	require.Nil(t, Snapshot(nil))
	assert.JSONEq(t, `{"id":"x"}`, string(Snapshot(map[string]string{"id": "x"})))
	// Channels cannot be marshalled; the snapshot degrades to a string.
	assert.NotEmpty(t, Snapshot(make(chan int)))
}
