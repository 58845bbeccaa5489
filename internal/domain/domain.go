package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleRequester Role = "REQUESTER"
	RoleAssigner  Role = "ASSIGNER"
	RoleExecutor  Role = "EXECUTOR"
)

// Roles lists every role in declaration order.
var Roles = []Role{RoleAdmin, RoleRequester, RoleAssigner, RoleExecutor}

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order. IN_PROGRESS is declared but
// no transition produces or consumes it.
var Statuses = []Status{StatusDraft, StatusSubmitted, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityTrivial  Priority = "TRIVIAL"
)

var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityTrivial}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID    string `json:"id"`
	Roles []Role `json:"roles"`
}

func (a Actor) HasRole(r Role) bool {
	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.HasRole(RoleAdmin) }

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

type TaskRequest struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	CategoryID     string       `json:"category_id"`
	Priority       Priority     `json:"priority" enum:"CRITICAL,HIGH,MEDIUM,LOW,TRIVIAL"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	Status         Status       `json:"status" enum:"DRAFT,SUBMITTED,ASSIGNED,IN_PROGRESS,COMPLETED,CANCELLED"`
	RequesterID    string       `json:"requester_id"`
	AssignerID     *string      `json:"assigner_id,omitempty"`
	RequestDate    time.Time    `json:"request_date"`
	AssignmentDate *time.Time   `json:"assignment_date,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Comments       []Comment    `json:"comments"`
	Attachments    []Attachment `json:"attachments"`
}

// Comment is immutable once appended; Seq orders comments within a request.
type Comment struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Seq       int64     `json:"seq"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type FileMetadata struct {
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	StorageRef  string `json:"storage_ref,omitempty"`
}

type Attachment struct {
	ID         string       `json:"id"`
	RequestID  string       `json:"request_id"`
	Seq        int64        `json:"seq"`
	UploaderID string       `json:"uploader_id"`
	FileName   string       `json:"file_name"`
	Metadata   FileMetadata `json:"file_metadata"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
