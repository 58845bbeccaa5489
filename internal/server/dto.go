package server

import (
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/repo"
)

// Request payloads

type CreateRequestBody struct {
	Title       string     `json:"title" maxLength:"255"`
	Description string     `json:"description" maxLength:"2000"`
	CategoryID  string     `json:"category_id,omitempty"`
	Priority    string     `json:"priority,omitempty" enum:"CRITICAL,HIGH,MEDIUM,LOW,TRIVIAL"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Notes       string     `json:"notes,omitempty" maxLength:"1000"`
	Submit      bool       `json:"submit,omitempty" doc:"Submit immediately after creation"`
}

type UpdateRequestBody struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	CategoryID   *string    `json:"category_id,omitempty"`
	Priority     *string    `json:"priority,omitempty" enum:"CRITICAL,HIGH,MEDIUM,LOW,TRIVIAL"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	Submit       bool       `json:"submit,omitempty"`
}

type CommentBody struct {
	Content string `json:"content"`
}

type AttachmentBody struct {
	FileName    string `json:"file_name" maxLength:"255"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty" minimum:"0"`
	StorageRef  string `json:"storage_ref,omitempty"`
}

type CategoryBody struct {
	Name        string `json:"name" maxLength:"255"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"`
}

type CategoryPatchBody struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

type RoleGrantBody struct {
	Role string `json:"role" enum:"ADMIN,REQUESTER,ASSIGNER,EXECUTOR"`
}

// Responses

type RequestResponse struct {
	domain.TaskRequest
	// AllowedTransitions lists what the caller may do next.
	AllowedTransitions []string `json:"allowed_transitions"`
}

type paginatedRequests struct {
	Items      []RequestResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type StatsResponse struct {
	Counts map[domain.Status]int `json:"counts"`
	Total  int                   `json:"total"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items []EventResponse `json:"items"`
}

type WhoAmIResponse struct {
	ActorID string        `json:"actor_id"`
	Roles   []domain.Role `json:"roles"`
	Source  string        `json:"source"`
}

type ActorRolesResponse struct {
	Items []repo.ActorRoles `json:"items"`
}

func requestResponse(actor domain.Actor, t domain.TaskRequest) RequestResponse {
	t.Comments = nonNilSlice(t.Comments)
	t.Attachments = nonNilSlice(t.Attachments)
	resp := RequestResponse{TaskRequest: t, AllowedTransitions: []string{}}
	for _, rule := range auth.Transitions() {
		if auth.CanTransition(actor, t, rule.To) {
			resp.AllowedTransitions = append(resp.AllowedTransitions, string(rule.Name))
		}
	}
	return resp
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
