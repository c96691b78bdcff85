package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements auth.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to Postgres through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests.
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Venues(context.Context) auth.VenueStore       { return &venueStore{db: s.db} }
func (s *Store) Operators(context.Context) auth.OperatorStore { return &operatorStore{db: s.db} }
func (s *Store) Sessions(context.Context) auth.SessionStore   { return &sessionStore{db: s.db} }
func (s *Store) Audit(context.Context) audit.Store            { return &auditStore{db: s.db} }

// --- venues ---

type venueStore struct{ db *sql.DB }

func (s *venueStore) Create(ctx context.Context, v *auth.Venue) error {
	row := s.db.QueryRowContext(ctx, `
		insert into venues (id, name, email, secret_hash, active, requires_operator_setup)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, v.ID, v.Name, v.Email, v.SecretHash, v.Active, v.RequiresOperatorSetup)
	if err := row.Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *venueStore) Find(ctx context.Context, id string) (*auth.Venue, error) {
	return s.findWhere(ctx, `id = $1`, id)
}

func (s *venueStore) FindByEmail(ctx context.Context, email string) (*auth.Venue, error) {
	return s.findWhere(ctx, `email = $1`, strings.ToLower(email))
}

func (s *venueStore) findWhere(ctx context.Context, where string, arg any) (*auth.Venue, error) {
	var v auth.Venue
	err := s.db.QueryRowContext(ctx, `
		select id, name, email, secret_hash, active, requires_operator_setup, created_at, updated_at
		from venues
		where `+where, arg).Scan(
		&v.ID, &v.Name, &v.Email, &v.SecretHash, &v.Active, &v.RequiresOperatorSetup, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *venueStore) SetOperatorSetupDone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update venues set requires_operator_setup = false, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
