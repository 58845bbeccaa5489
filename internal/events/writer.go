package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	RequestCreated     = "request.created"
	RequestUpdated     = "request.updated"
	RequestTransition  = "request.transition"
	RequestDeleted     = "request.deleted"
	CommentAdded       = "comment.added"
	AttachmentAdded    = "attachment.added"
	CategoryCreated    = "category.created"
	CategoryUpdated    = "category.updated"
	CategoryDefaultSet = "category.default"
	CategoryDeleted    = "category.deleted"
	RoleGranted        = "role.granted"
	RoleRevoked        = "role.revoked"
)

// Writer appends audit events inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
