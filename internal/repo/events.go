package repo

import (
	"context"
	"strings"

	"taskdesk/internal/domain"
)

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
}

// LatestEvents returns the newest events first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	query := `SELECT id, ts, type, entity_kind, COALESCE(entity_id,'') AS entity_id, actor_id, payload_json FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var rows []struct {
		ID         int64  `db:"id"`
		TS         string `db:"ts"`
		Type       string `db:"type"`
		EntityKind string `db:"entity_kind"`
		EntityID   string `db:"entity_id"`
		ActorID    string `db:"actor_id"`
		Payload    string `db:"payload_json"`
	}
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	res := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.Event{
			ID:         row.ID,
			TS:         row.TS,
			Type:       row.Type,
			EntityKind: row.EntityKind,
			EntityID:   row.EntityID,
			ActorID:    row.ActorID,
			Payload:    row.Payload,
		})
	}
	return res, nil
}
