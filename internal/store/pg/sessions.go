package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	row := s.db.QueryRowContext(ctx, `
		insert into sessions (id, kind, owner_id, venue_id, refresh_hash, refresh_expires_at,
			device_name, device_type, ip, user_agent, last_activity, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning created_at
	`, sess.ID, string(sess.Kind), sess.OwnerID, sess.VenueID, sess.RefreshHash,
		sess.RefreshExpiresAt, sess.Device.Name, sess.Device.Type, sess.IP,
		sess.UserAgent, sess.LastActivity, sess.Active)
	if err := row.Scan(&sess.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

const sessionColumns = `
	id, kind, owner_id, venue_id, refresh_hash, refresh_expires_at,
	device_name, device_type, ip, user_agent, last_activity, active,
	coalesce(access_token_jti, ''), created_at`

func (s *sessionStore) Find(ctx context.Context, id string) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Rotate swaps the refresh hash in one statement guarded by the current
// hash, so two racing rotations can never both succeed.
func (s *sessionStore) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set refresh_hash = $3, refresh_expires_at = $4, last_activity = now()
		where id = $1 and refresh_hash = $2 and active
	`, id, oldHash, newHash, expiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrInvalidRefreshToken
	}
	return nil
}

func (s *sessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set last_activity = $2 where id = $1 and active
	`, id, at)
	return err
}

func (s *sessionStore) BindAccessToken(ctx context.Context, id, jti string) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions set access_token_jti = $2 where id = $1 and active
	`, id, jti)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *sessionStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions set active = false where id = $1 and active
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *sessionStore) DeactivateAll(ctx context.Context, kind auth.SessionKind, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		update sessions set active = false
		where kind = $1 and owner_id = $2 and active
		returning coalesce(access_token_jti, '')
	`, string(kind), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jtis []string
	for rows.Next() {
		var jti string
		if err := rows.Scan(&jti); err != nil {
			return nil, err
		}
		if jti != "" {
			jtis = append(jtis, jti)
		}
	}
	return jtis, rows.Err()
}

func (s *sessionStore) ActiveByOwner(ctx context.Context, kind auth.SessionKind, ownerID string) ([]auth.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+` from sessions
		where kind = $1 and owner_id = $2 and active
		order by last_activity desc
	`, string(kind), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *sessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from sessions where not active and refresh_expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*auth.Session, error) {
	var (
		sess auth.Session
		kind string
	)
	if err := row.Scan(
		&sess.ID, &kind, &sess.OwnerID, &sess.VenueID, &sess.RefreshHash,
		&sess.RefreshExpiresAt, &sess.Device.Name, &sess.Device.Type, &sess.IP,
		&sess.UserAgent, &sess.LastActivity, &sess.Active, &sess.AccessTokenJTI,
		&sess.CreatedAt,
	); err != nil {
		return nil, err
	}
	sess.Kind = auth.SessionKind(kind)
	return &sess, nil
}
