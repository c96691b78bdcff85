package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

type operatorStore struct{ db *sql.DB }

const operatorColumns = `
	id, venue_id, username, secret_hash, role, permissions, active, founder,
	failed_attempts, locked_until, must_change_secret, created_by, created_at, updated_at`

func (s *operatorStore) Create(ctx context.Context, o *auth.Operator) error {
	row := s.db.QueryRowContext(ctx, `
		insert into operators (id, venue_id, username, secret_hash, role, permissions,
			active, founder, must_change_secret, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, nullif($10, ''))
		returning created_at, updated_at
	`, o.ID, o.VenueID, o.Username, o.SecretHash, string(o.Role), int64(o.Permissions),
		o.Active, o.Founder, o.MustChangeSecret, o.CreatedBy)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *operatorStore) Find(ctx context.Context, venueID, id string) (*auth.Operator, error) {
	return s.findWhere(ctx, `venue_id = $1 and id = $2`, venueID, id)
}

func (s *operatorStore) FindByUsername(ctx context.Context, venueID, username string) (*auth.Operator, error) {
	return s.findWhere(ctx, `venue_id = $1 and username = $2`, venueID, strings.ToLower(username))
}

func (s *operatorStore) findWhere(ctx context.Context, where string, args ...any) (*auth.Operator, error) {
	row := s.db.QueryRowContext(ctx, `select `+operatorColumns+` from operators where `+where, args...)
	op, err := scanOperator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *operatorStore) ListByVenue(ctx context.Context, venueID string) ([]auth.Operator, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+operatorColumns+` from operators where venue_id = $1 order by created_at
	`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

func (s *operatorStore) Update(ctx context.Context, o *auth.Operator) error {
	res, err := s.db.ExecContext(ctx, `
		update operators
		set role = $3, permissions = $4, active = $5, updated_at = now()
		where venue_id = $1 and id = $2
	`, o.VenueID, o.ID, string(o.Role), int64(o.Permissions), o.Active)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *operatorStore) UpdateSecret(ctx context.Context, venueID, id, secretHash string, mustChange bool) error {
	res, err := s.db.ExecContext(ctx, `
		update operators
		set secret_hash = $3, must_change_secret = $4,
			failed_attempts = 0, locked_until = null, updated_at = now()
		where venue_id = $1 and id = $2
	`, venueID, id, secretHash, mustChange)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *operatorStore) Delete(ctx context.Context, venueID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from operators where venue_id = $1 and id = $2 and not founder
	`, venueID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// RecordFailedAttempt is a single atomic statement: concurrent failures
// against the same operator never lose increments.
func (s *operatorStore) RecordFailedAttempt(ctx context.Context, venueID, id string, threshold int, lockFor time.Duration) (int, time.Time, error) {
	var (
		attempts    int
		lockedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		update operators
		set failed_attempts = failed_attempts + 1,
			locked_until = case
				when failed_attempts + 1 >= $3 then now() + make_interval(secs => $4)
				else locked_until
			end,
			updated_at = now()
		where venue_id = $1 and id = $2
		returning failed_attempts, locked_until
	`, venueID, id, threshold, lockFor.Seconds()).Scan(&attempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, auth.ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return attempts, lockedUntil.Time, nil
}

func (s *operatorStore) ResetFailedAttempts(ctx context.Context, venueID, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update operators
		set failed_attempts = 0, locked_until = null, updated_at = now()
		where venue_id = $1 and id = $2
	`, venueID, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperator(row rowScanner) (*auth.Operator, error) {
	var (
		op          auth.Operator
		role        string
		permissions int64
		lockedUntil sql.NullTime
		createdBy   sql.NullString
	)
	if err := row.Scan(
		&op.ID, &op.VenueID, &op.Username, &op.SecretHash, &role, &permissions,
		&op.Active, &op.Founder, &op.FailedAttempts, &lockedUntil,
		&op.MustChangeSecret, &createdBy, &op.CreatedAt, &op.UpdatedAt,
	); err != nil {
		return nil, err
	}
	op.Role = auth.Role(role)
	op.Permissions = auth.Capability(permissions)
	if lockedUntil.Valid {
		op.LockedUntil = lockedUntil.Time
	}
	if createdBy.Valid {
		op.CreatedBy = createdBy.String
	}
	return &op, nil
}
