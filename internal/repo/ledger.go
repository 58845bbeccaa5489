package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"taskdesk/internal/domain"
)

type commentRow struct {
	ID        string `db:"id"`
	RequestID string `db:"request_id"`
	Seq       int64  `db:"seq"`
	AuthorID  string `db:"author_id"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
}

type attachmentRow struct {
	ID           string `db:"id"`
	RequestID    string `db:"request_id"`
	Seq          int64  `db:"seq"`
	UploaderID   string `db:"uploader_id"`
	FileName     string `db:"file_name"`
	MetadataJSON string `db:"metadata_json"`
	UploadedAt   string `db:"uploaded_at"`
}

// AppendCommentTx stores c at the tail of its request's sequence and returns it with Seq set.
func (r Repo) AppendCommentTx(ctx context.Context, tx *sqlx.Tx, c domain.Comment) (domain.Comment, error) {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,request_id,seq,author_id,content,created_at)
SELECT ?,?,COALESCE(MAX(seq),0)+1,?,?,? FROM comments WHERE request_id=?`,
		c.ID, c.RequestID, c.AuthorID, c.Content, formatTime(c.CreatedAt), c.RequestID)
	if err != nil {
		return c, err
	}
	if err := tx.GetContext(ctx, &c.Seq, `SELECT seq FROM comments WHERE id=?`, c.ID); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) AppendAttachmentTx(ctx context.Context, tx *sqlx.Tx, a domain.Attachment) (domain.Attachment, error) {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return a, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO attachments(id,request_id,seq,uploader_id,file_name,metadata_json,uploaded_at)
SELECT ?,?,COALESCE(MAX(seq),0)+1,?,?,?,? FROM attachments WHERE request_id=?`,
		a.ID, a.RequestID, a.UploaderID, a.FileName, string(meta), formatTime(a.UploadedAt), a.RequestID)
	if err != nil {
		return a, err
	}
	if err := tx.GetContext(ctx, &a.Seq, `SELECT seq FROM attachments WHERE id=?`, a.ID); err != nil {
		return a, err
	}
	return a, nil
}

func (r Repo) ListComments(ctx context.Context, requestID string) ([]domain.Comment, error) {
	return listComments(ctx, r.DB, requestID)
}

func listComments(ctx context.Context, q sqlx.QueryerContext, requestID string) ([]domain.Comment, error) {
	var rows []commentRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT id,request_id,seq,author_id,content,created_at
FROM comments WHERE request_id=? ORDER BY seq ASC`, requestID); err != nil {
		return nil, err
	}
	res := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("comment %s created_at: %w", row.ID, err)
		}
		res = append(res, domain.Comment{
			ID:        row.ID,
			RequestID: row.RequestID,
			Seq:       row.Seq,
			AuthorID:  row.AuthorID,
			Content:   row.Content,
			CreatedAt: created,
		})
	}
	return res, nil
}

func (r Repo) ListAttachments(ctx context.Context, requestID string) ([]domain.Attachment, error) {
	return listAttachments(ctx, r.DB, requestID)
}

func listAttachments(ctx context.Context, q sqlx.QueryerContext, requestID string) ([]domain.Attachment, error) {
	var rows []attachmentRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT id,request_id,seq,uploader_id,file_name,metadata_json,uploaded_at
FROM attachments WHERE request_id=? ORDER BY seq ASC`, requestID); err != nil {
		return nil, err
	}
	res := make([]domain.Attachment, 0, len(rows))
	for _, row := range rows {
		uploaded, err := parseTime(row.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("attachment %s uploaded_at: %w", row.ID, err)
		}
		a := domain.Attachment{
			ID:         row.ID,
			RequestID:  row.RequestID,
			Seq:        row.Seq,
			UploaderID: row.UploaderID,
			FileName:   row.FileName,
			UploadedAt: uploaded,
		}
		if row.MetadataJSON != "" {
			if err := json.Unmarshal([]byte(row.MetadataJSON), &a.Metadata); err != nil {
				return nil, fmt.Errorf("attachment %s metadata: %w", row.ID, err)
			}
		}
		res = append(res, a)
	}
	return res, nil
}
