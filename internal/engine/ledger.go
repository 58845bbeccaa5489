package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taskdesk/internal/domain"
	"taskdesk/internal/events"
)

// AddComment appends a comment and returns the request with its full ledger.
// Any actor may comment; comments are never edited or removed.
func (e Engine) AddComment(ctx context.Context, actor domain.Actor, requestID, content string) (domain.TaskRequest, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetRequestTx(ctx, tx, requestID); err != nil {
		return domain.TaskRequest{}, requestErr(requestID, err)
	}
	if strings.TrimSpace(content) == "" {
		return domain.TaskRequest{}, domain.Invalid("content", "required")
	}
	c, err := e.Repo.AppendCommentTx(ctx, tx, domain.Comment{
		ID:        uuid.NewString(),
		RequestID: requestID,
		AuthorID:  actor.ID,
		Content:   content,
		CreatedAt: e.now(),
	})
	if err != nil {
		return domain.TaskRequest{}, fmt.Errorf("append comment: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.CommentAdded, "request", requestID, actor.ID, events.EventPayload{
		"comment_id": c.ID, "seq": c.Seq,
	}); err != nil {
		return domain.TaskRequest{}, err
	}
	t, err := e.Repo.GetRequestTx(ctx, tx, requestID)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRequest{}, err
	}
	return t, nil
}

type AttachmentInput struct {
	FileName string
	Metadata domain.FileMetadata
}

// AddAttachment records attachment metadata. File bytes are stored elsewhere;
// Metadata.StorageRef points at them.
func (e Engine) AddAttachment(ctx context.Context, actor domain.Actor, requestID string, in AttachmentInput) (domain.TaskRequest, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetRequestTx(ctx, tx, requestID); err != nil {
		return domain.TaskRequest{}, requestErr(requestID, err)
	}
	if err := checkText("file_name", in.FileName, true, MaxFileNameLen); err != nil {
		return domain.TaskRequest{}, err
	}
	if in.Metadata.Size < 0 {
		return domain.TaskRequest{}, domain.Invalid("file_metadata.size", "must not be negative")
	}
	a, err := e.Repo.AppendAttachmentTx(ctx, tx, domain.Attachment{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		UploaderID: actor.ID,
		FileName:   in.FileName,
		Metadata:   in.Metadata,
		UploadedAt: e.now(),
	})
	if err != nil {
		return domain.TaskRequest{}, fmt.Errorf("append attachment: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.AttachmentAdded, "request", requestID, actor.ID, events.EventPayload{
		"attachment_id": a.ID, "seq": a.Seq, "file_name": a.FileName,
	}); err != nil {
		return domain.TaskRequest{}, err
	}
	t, err := e.Repo.GetRequestTx(ctx, tx, requestID)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRequest{}, err
	}
	return t, nil
}
