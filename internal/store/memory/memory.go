// Package memory implements auth.Store in process memory. It backs the
// dev mode of cmd/api and the service-level tests; the guarantees mirror
// the Postgres store (unique refresh hashes, atomic rotation, atomic
// failure counters) with a single mutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

// Store holds all entities behind one mutex.
type Store struct {
	mu        sync.Mutex
	venues    map[string]*auth.Venue
	operators map[string]*auth.Operator
	sessions  map[string]*auth.Session
	hashes    map[string]string // refresh hash -> session id
	entries   []audit.Entry
	now       func() time.Time
}

var _ auth.Store = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		venues:    make(map[string]*auth.Venue),
		operators: make(map[string]*auth.Operator),
		sessions:  make(map[string]*auth.Session),
		hashes:    make(map[string]string),
		now:       time.Now,
	}
}

func (s *Store) Venues(context.Context) auth.VenueStore       { return &venueStore{s} }
func (s *Store) Operators(context.Context) auth.OperatorStore { return &operatorStore{s} }
func (s *Store) Sessions(context.Context) auth.SessionStore   { return &sessionStore{s} }
func (s *Store) Audit(context.Context) audit.Store            { return &auditStore{s} }

// --- venues ---

type venueStore struct{ s *Store }

func (v *venueStore) Create(_ context.Context, venue *auth.Venue) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.venues {
		if existing.Email == venue.Email {
			return auth.ErrConflict
		}
	}
	now := v.s.now()
	venue.CreatedAt, venue.UpdatedAt = now, now
	cp := *venue
	v.s.venues[venue.ID] = &cp
	return nil
}

func (v *venueStore) Find(_ context.Context, id string) (*auth.Venue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	venue, ok := v.s.venues[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *venue
	return &cp, nil
}

func (v *venueStore) FindByEmail(_ context.Context, email string) (*auth.Venue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	email = strings.ToLower(email)
	for _, venue := range v.s.venues {
		if venue.Email == email {
			cp := *venue
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (v *venueStore) SetOperatorSetupDone(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	venue, ok := v.s.venues[id]
	if !ok {
		return auth.ErrNotFound
	}
	venue.RequiresOperatorSetup = false
	venue.UpdatedAt = v.s.now()
	return nil
}

// --- operators ---

type operatorStore struct{ s *Store }

func (o *operatorStore) Create(_ context.Context, op *auth.Operator) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if _, ok := o.s.venues[op.VenueID]; !ok {
		return auth.ErrNotFound
	}
	for _, existing := range o.s.operators {
		if existing.VenueID == op.VenueID && existing.Username == op.Username {
			return auth.ErrConflict
		}
	}
	now := o.s.now()
	op.CreatedAt, op.UpdatedAt = now, now
	cp := *op
	o.s.operators[op.ID] = &cp
	return nil
}

func (o *operatorStore) Find(_ context.Context, venueID, id string) (*auth.Operator, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	op, ok := o.s.operators[id]
	if !ok || op.VenueID != venueID {
		return nil, auth.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (o *operatorStore) FindByUsername(_ context.Context, venueID, username string) (*auth.Operator, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	username = strings.ToLower(username)
	for _, op := range o.s.operators {
		if op.VenueID == venueID && op.Username == username {
			cp := *op
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (o *operatorStore) ListByVenue(_ context.Context, venueID string) ([]auth.Operator, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var out []auth.Operator
	for _, op := range o.s.operators {
		if op.VenueID == venueID {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (o *operatorStore) Update(_ context.Context, op *auth.Operator) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	existing, ok := o.s.operators[op.ID]
	if !ok || existing.VenueID != op.VenueID {
		return auth.ErrNotFound
	}
	existing.Role = op.Role
	existing.Permissions = op.Permissions
	existing.Active = op.Active
	existing.UpdatedAt = o.s.now()
	return nil
}

func (o *operatorStore) UpdateSecret(_ context.Context, venueID, id, secretHash string, mustChange bool) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	op, ok := o.s.operators[id]
	if !ok || op.VenueID != venueID {
		return auth.ErrNotFound
	}
	op.SecretHash = secretHash
	op.MustChangeSecret = mustChange
	op.FailedAttempts = 0
	op.LockedUntil = time.Time{}
	op.UpdatedAt = o.s.now()
	return nil
}

func (o *operatorStore) Delete(_ context.Context, venueID, id string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	op, ok := o.s.operators[id]
	if !ok || op.VenueID != venueID || op.Founder {
		return auth.ErrNotFound
	}
	delete(o.s.operators, id)
	return nil
}

func (o *operatorStore) RecordFailedAttempt(_ context.Context, venueID, id string, threshold int, lockFor time.Duration) (int, time.Time, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	op, ok := o.s.operators[id]
	if !ok || op.VenueID != venueID {
		return 0, time.Time{}, auth.ErrNotFound
	}
	op.FailedAttempts++
	if op.FailedAttempts >= threshold {
		op.LockedUntil = o.s.now().Add(lockFor)
	}
	op.UpdatedAt = o.s.now()
	return op.FailedAttempts, op.LockedUntil, nil
}

func (o *operatorStore) ResetFailedAttempts(_ context.Context, venueID, id string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	op, ok := o.s.operators[id]
	if !ok || op.VenueID != venueID {
		return auth.ErrNotFound
	}
	op.FailedAttempts = 0
	op.LockedUntil = time.Time{}
	return nil
}

// --- sessions ---

type sessionStore struct{ s *Store }

func (st *sessionStore) Create(_ context.Context, sess *auth.Session) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, taken := st.s.hashes[sess.RefreshHash]; taken {
		return auth.ErrConflict
	}
	sess.CreatedAt = st.s.now()
	cp := *sess
	st.s.sessions[sess.ID] = &cp
	st.s.hashes[sess.RefreshHash] = sess.ID
	return nil
}

func (st *sessionStore) Find(_ context.Context, id string) (*auth.Session, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	sess, ok := st.s.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (st *sessionStore) Rotate(_ context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	sess, ok := st.s.sessions[id]
	if !ok || !sess.Active || sess.RefreshHash != oldHash {
		return auth.ErrInvalidRefreshToken
	}
	if _, taken := st.s.hashes[newHash]; taken {
		return auth.ErrConflict
	}
	delete(st.s.hashes, oldHash)
	sess.RefreshHash = newHash
	sess.RefreshExpiresAt = expiresAt
	sess.LastActivity = st.s.now()
	st.s.hashes[newHash] = id
	return nil
}

func (st *sessionStore) Touch(_ context.Context, id string, at time.Time) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if sess, ok := st.s.sessions[id]; ok && sess.Active {
		sess.LastActivity = at
	}
	return nil
}

func (st *sessionStore) BindAccessToken(_ context.Context, id, jti string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	sess, ok := st.s.sessions[id]
	if !ok || !sess.Active {
		return auth.ErrNotFound
	}
	sess.AccessTokenJTI = jti
	return nil
}

func (st *sessionStore) Deactivate(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	sess, ok := st.s.sessions[id]
	if !ok || !sess.Active {
		return auth.ErrNotFound
	}
	sess.Active = false
	return nil
}

func (st *sessionStore) DeactivateAll(_ context.Context, kind auth.SessionKind, ownerID string) ([]string, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var jtis []string
	for _, sess := range st.s.sessions {
		if sess.Kind == kind && sess.OwnerID == ownerID && sess.Active {
			sess.Active = false
			if sess.AccessTokenJTI != "" {
				jtis = append(jtis, sess.AccessTokenJTI)
			}
		}
	}
	return jtis, nil
}

func (st *sessionStore) ActiveByOwner(_ context.Context, kind auth.SessionKind, ownerID string) ([]auth.Session, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []auth.Session
	for _, sess := range st.s.sessions {
		if sess.Kind == kind && sess.OwnerID == ownerID && sess.Active {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (st *sessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var removed int64
	for id, sess := range st.s.sessions {
		if !sess.Active && sess.RefreshExpiresAt.Before(cutoff) {
			delete(st.s.hashes, sess.RefreshHash)
			delete(st.s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// --- audit ---

type auditStore struct{ s *Store }

func (a *auditStore) Append(_ context.Context, entry *audit.Entry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.entries = append(a.s.entries, *entry)
	return nil
}

func (a *auditStore) Query(_ context.Context, venueID string, filter audit.Filter) ([]audit.Entry, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []audit.Entry
	for i := len(a.s.entries) - 1; i >= 0; i-- {
		entry := a.s.entries[i]
		if entry.VenueID != venueID {
			continue
		}
		if filter.ActorOperatorID != "" && entry.ActorOperatorID != filter.ActorOperatorID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.From.IsZero() && entry.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && entry.OccurredAt.After(filter.To) {
			continue
		}
		if filter.AfterID != "" && entry.ID >= filter.AfterID {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
