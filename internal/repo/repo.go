package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"taskdesk/internal/domain"
)

type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = domain.ErrNotFound

// ErrStatusMismatch is returned by ConditionalUpdate when the stored status
// differs from the one the mutation was computed against.
var ErrStatusMismatch = errors.New("status changed concurrently")

const requestColumns = `id,title,description,category_id,priority,due_date,status,requester_id,assigner_id,request_date,assignment_date,notes,updated_at`

type requestRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	CategoryID     string         `db:"category_id"`
	Priority       string         `db:"priority"`
	DueDate        sql.NullString `db:"due_date"`
	Status         string         `db:"status"`
	RequesterID    string         `db:"requester_id"`
	AssignerID     sql.NullString `db:"assigner_id"`
	RequestDate    string         `db:"request_date"`
	AssignmentDate sql.NullString `db:"assignment_date"`
	Notes          sql.NullString `db:"notes"`
	UpdatedAt      string         `db:"updated_at"`
}

func (row requestRow) toDomain() (domain.TaskRequest, error) {
	t := domain.TaskRequest{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		CategoryID:  row.CategoryID,
		Priority:    domain.Priority(row.Priority),
		Status:      domain.Status(row.Status),
		RequesterID: row.RequesterID,
		Comments:    []domain.Comment{},
		Attachments: []domain.Attachment{},
	}
	var err error
	if t.RequestDate, err = parseTime(row.RequestDate); err != nil {
		return t, fmt.Errorf("request %s request_date: %w", row.ID, err)
	}
	if t.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return t, fmt.Errorf("request %s updated_at: %w", row.ID, err)
	}
	if t.DueDate, err = parseNullTime(row.DueDate); err != nil {
		return t, fmt.Errorf("request %s due_date: %w", row.ID, err)
	}
	if t.AssignmentDate, err = parseNullTime(row.AssignmentDate); err != nil {
		return t, fmt.Errorf("request %s assignment_date: %w", row.ID, err)
	}
	if row.AssignerID.Valid {
		t.AssignerID = &row.AssignerID.String
	}
	if row.Notes.Valid {
		t.Notes = row.Notes.String
	}
	return t, nil
}

func (r Repo) InsertRequest(ctx context.Context, tx *sqlx.Tx, t domain.TaskRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.CategoryID, string(t.Priority), nullableTime(t.DueDate), string(t.Status),
		t.RequesterID, nullableStringPtr(t.AssignerID), formatTime(t.RequestDate), nullableTime(t.AssignmentDate),
		nullable(t.Notes), formatTime(t.UpdatedAt))
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.TaskRequest, error) {
	return getRequest(ctx, r.DB, id)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sqlx.Tx, id string) (domain.TaskRequest, error) {
	return getRequest(ctx, tx, id)
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id string) (domain.TaskRequest, error) {
	var row requestRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+requestColumns+` FROM task_requests WHERE id=?`, id)
	if err == sql.ErrNoRows {
		return domain.TaskRequest{}, ErrNotFound
	}
	if err != nil {
		return domain.TaskRequest{}, err
	}
	t, err := row.toDomain()
	if err != nil {
		return t, err
	}
	if t.Comments, err = listComments(ctx, q, t.ID); err != nil {
		return t, err
	}
	if t.Attachments, err = listAttachments(ctx, q, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

// ConditionalUpdate reads the request inside tx, hands it to mutate and writes
// the result only if the stored status still equals the status mutate saw.
// A mutate error aborts without writing.
func (r Repo) ConditionalUpdate(ctx context.Context, tx *sqlx.Tx, id string, mutate func(cur domain.TaskRequest) (domain.TaskRequest, error)) (domain.TaskRequest, error) {
	cur, err := r.GetRequestTx(ctx, tx, id)
	if err != nil {
		return cur, err
	}
	next, err := mutate(cur)
	if err != nil {
		return cur, err
	}
	next.ID = cur.ID
	res, err := tx.ExecContext(ctx, `UPDATE task_requests SET title=?, description=?, category_id=?, priority=?, due_date=?, status=?, assigner_id=?, assignment_date=?, notes=?, updated_at=?
WHERE id=? AND status=?`,
		next.Title, next.Description, next.CategoryID, string(next.Priority), nullableTime(next.DueDate), string(next.Status),
		nullableStringPtr(next.AssignerID), nullableTime(next.AssignmentDate), nullable(next.Notes), formatTime(next.UpdatedAt),
		cur.ID, string(cur.Status))
	if err != nil {
		return cur, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return cur, err
	}
	if affected == 0 {
		return cur, ErrStatusMismatch
	}
	return next, nil
}

func (r Repo) DeleteRequest(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_requests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type RequestFilters struct {
	Status            domain.Status
	RequesterID       string
	AssignerID        string
	CategoryID        string
	Limit             int
	CursorRequestDate string
	CursorID          string
}

func (f RequestFilters) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.AssignerID != "" {
		clauses = append(clauses, "assigner_id=?")
		args = append(args, f.AssignerID)
	}
	if f.CategoryID != "" {
		clauses = append(clauses, "category_id=?")
		args = append(args, f.CategoryID)
	}
	if f.CursorRequestDate != "" && f.CursorID != "" {
		clauses = append(clauses, "(request_date < ? OR (request_date = ? AND id < ?))")
		args = append(args, f.CursorRequestDate, f.CursorRequestDate, f.CursorID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListRequests returns requests newest first without their ledger entries.
func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.TaskRequest, error) {
	where, args := f.where()
	query := `SELECT ` + requestColumns + ` FROM task_requests ` + where + ` ORDER BY request_date DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var rows []requestRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	res := make([]domain.TaskRequest, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// CountRequestsByStatus groups in SQL; only statuses with rows are returned.
func (r Repo) CountRequestsByStatus(ctx context.Context, f RequestFilters) (map[domain.Status]int, error) {
	f.Limit, f.CursorID, f.CursorRequestDate = 0, "", ""
	where, args := f.where()
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.DB.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM task_requests `+where+` GROUP BY status`, args...); err != nil {
		return nil, err
	}
	counts := make(map[domain.Status]int, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.N
	}
	return counts, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// FormatCursorTime renders t the way request_date is stored.
func FormatCursorTime(t time.Time) string {
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
