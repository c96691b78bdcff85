package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestVenueCreateDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into venues").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Venues(context.Background()).Create(context.Background(), &auth.Venue{
		ID:    "v1",
		Name:  "Club",
		Email: "club@example.com",
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVenueFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, name, email").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Venues(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSessionRotateGuardedByOldHash(t *testing.T) {
	store, mock := newMockStore(t)
	expiry := time.Now().Add(14 * 24 * time.Hour)
	mock.ExpectExec("update sessions").
		WithArgs("s1", "old-hash", "new-hash", expiry).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Sessions(context.Background()).Rotate(context.Background(), "s1", "old-hash", "new-hash", expiry); err != nil {
		t.Fatalf("rotate: %v", err)
	}
}

func TestSessionRotateLosesRace(t *testing.T) {
	store, mock := newMockStore(t)
	expiry := time.Now()
	// Zero affected rows: the guard saw a different hash, the token was
	// already consumed.
	mock.ExpectExec("update sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Sessions(context.Background()).Rotate(context.Background(), "s1", "stale-hash", "new-hash", expiry)
	if !errors.Is(err, auth.ErrInvalidRefreshToken) {
		t.Fatalf("got %v, want ErrInvalidRefreshToken", err)
	}
}

func TestSessionDeactivateAllReturnsBoundJTIs(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"coalesce"}).
		AddRow("jti-1").
		AddRow(""). // session without a bound token is skipped
		AddRow("jti-2")
	mock.ExpectQuery("update sessions set active = false").
		WithArgs("operational", "op-1").
		WillReturnRows(rows)

	jtis, err := store.Sessions(context.Background()).DeactivateAll(context.Background(), auth.SessionOperational, "op-1")
	if err != nil {
		t.Fatalf("deactivate all: %v", err)
	}
	if len(jtis) != 2 || jtis[0] != "jti-1" || jtis[1] != "jti-2" {
		t.Fatalf("jtis = %v", jtis)
	}
}

func TestRecordFailedAttemptReturnsCounter(t *testing.T) {
	store, mock := newMockStore(t)
	lockedUntil := time.Now().Add(15 * time.Minute)
	rows := sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).
		AddRow(3, lockedUntil)
	mock.ExpectQuery("update operators").
		WithArgs("v1", "op-1", 3, float64(900)).
		WillReturnRows(rows)

	attempts, until, err := store.Operators(context.Background()).
		RecordFailedAttempt(context.Background(), "v1", "op-1", 3, 15*time.Minute)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if !until.Equal(lockedUntil) {
		t.Fatalf("locked until %v, want %v", until, lockedUntil)
	}
}

func TestOperatorDeleteSkipsFounder(t *testing.T) {
	store, mock := newMockStore(t)
	// The founder guard lives in the statement; zero rows means not found
	// or protected.
	mock.ExpectExec("delete from operators").
		WithArgs("v1", "founder-id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Operators(context.Background()).Delete(context.Background(), "v1", "founder-id")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAuditAppendAndQuery(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	entry := &audit.Entry{
		ID:         "01ABC",
		VenueID:    "v1",
		Action:     "operator.created",
		EntityType: "operator",
		EntityID:   "op-1",
		OccurredAt: now,
	}
	if err := store.Audit(context.Background()).Append(context.Background(), entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id", "venue_id", "actor", "action", "entity_type", "entity_id",
		"old_value", "new_value", "ip", "user_agent", "occurred_at", "metadata",
	}).AddRow("01ABC", "v1", "", "operator.created", "operator", "op-1",
		nil, []byte(`{"id":"op-1"}`), "", "", now, []byte(`{"k":"v"}`))
	mock.ExpectQuery("select id, venue_id").
		WillReturnRows(rows)

	entries, err := store.Audit(context.Background()).Query(context.Background(), "v1", audit.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Metadata["k"] != "v" {
		t.Fatalf("metadata not decoded: %+v", entries[0])
	}
}
