package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
)

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *audit.Entry) error {
	meta := []byte("{}")
	if len(entry.Metadata) > 0 {
		bytes, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, venue_id, actor_operator_id, action, entity_type,
			entity_id, old_value, new_value, ip, user_agent, occurred_at, metadata)
		values ($1, $2, nullif($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, entry.ID, entry.VenueID, entry.ActorOperatorID, entry.Action, entry.EntityType,
		entry.EntityID, nullableJSON(entry.OldValue), nullableJSON(entry.NewValue),
		entry.IP, entry.UserAgent, entry.OccurredAt, meta)
	return err
}

func (s *auditStore) Query(ctx context.Context, venueID string, filter audit.Filter) ([]audit.Entry, error) {
	var (
		conds = []string{"venue_id = $1"}
		args  = []any{venueID}
		idx   = 2
	)
	if filter.ActorOperatorID != "" {
		conds = append(conds, fmt.Sprintf("actor_operator_id = $%d", idx))
		args = append(args, filter.ActorOperatorID)
		idx++
	}
	if filter.Action != "" {
		conds = append(conds, fmt.Sprintf("action = $%d", idx))
		args = append(args, filter.Action)
		idx++
	}
	if !filter.From.IsZero() {
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", idx))
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		conds = append(conds, fmt.Sprintf("occurred_at <= $%d", idx))
		args = append(args, filter.To)
		idx++
	}
	if filter.AfterID != "" {
		// Entry ids are ULIDs: lexicographic order is time order, so the
		// cursor walks newest-first pages without an offset scan.
		conds = append(conds, fmt.Sprintf("id < $%d", idx))
		args = append(args, filter.AfterID)
		idx++
	}
	query := fmt.Sprintf(`
		select id, venue_id, coalesce(actor_operator_id, ''), action, entity_type,
			entity_id, old_value, new_value, ip, user_agent, occurred_at, metadata
		from audit_log
		where %s
		order by id desc
		limit $%d
	`, strings.Join(conds, " and "), idx)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			oldValue []byte
			newValue []byte
			meta     []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.VenueID, &entry.ActorOperatorID, &entry.Action,
			&entry.EntityType, &entry.EntityID, &oldValue, &newValue,
			&entry.IP, &entry.UserAgent, &entry.OccurredAt, &meta,
		); err != nil {
			return nil, err
		}
		entry.OldValue = json.RawMessage(oldValue)
		entry.NewValue = json.RawMessage(newValue)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
