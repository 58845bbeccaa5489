package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

// CreateRequestOptions are parameters for creating a request.
type CreateRequestOptions struct {
	Title       string
	Description string
	// CategoryID falls back to the default category when empty.
	CategoryID        string
	Priority          domain.Priority
	DueDate           *time.Time
	Notes             string
	SubmitImmediately bool
}

func (e Engine) CreateRequest(ctx context.Context, actor domain.Actor, opts CreateRequestOptions) (domain.TaskRequest, error) {
	if !auth.CanCreate(actor) {
		return domain.TaskRequest{}, forbidden(actor, "create requests")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if err := checkText("title", opts.Title, true, MaxTitleLen); err != nil {
		return domain.TaskRequest{}, err
	}
	if err := checkText("description", opts.Description, true, MaxDescriptionLen); err != nil {
		return domain.TaskRequest{}, err
	}
	if err := checkText("notes", opts.Notes, false, MaxNotesLen); err != nil {
		return domain.TaskRequest{}, err
	}
	prio, err := normalizePriority(opts.Priority)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	opts.Priority = prio

	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	defer tx.Rollback()

	cat, err := e.resolveCategory(ctx, tx, opts.CategoryID)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	now := e.now()
	t := domain.TaskRequest{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		CategoryID:  cat.ID,
		Priority:    opts.Priority,
		DueDate:     opts.DueDate,
		Status:      domain.StatusDraft,
		RequesterID: actor.ID,
		RequestDate: now,
		Notes:       opts.Notes,
		UpdatedAt:   now,
		Comments:    []domain.Comment{},
		Attachments: []domain.Attachment{},
	}
	if err := e.Repo.InsertRequest(ctx, tx, t); err != nil {
		return domain.TaskRequest{}, fmt.Errorf("insert request: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.RequestCreated, "request", t.ID, actor.ID, events.EventPayload{
		"title": t.Title, "category_id": t.CategoryID, "priority": t.Priority,
	}); err != nil {
		return domain.TaskRequest{}, err
	}
	if opts.SubmitImmediately {
		rule, _ := auth.Lookup(auth.TransitionSubmit)
		t, err = e.Repo.ConditionalUpdate(ctx, tx, t.ID, func(cur domain.TaskRequest) (domain.TaskRequest, error) {
			return e.applyRule(actor, cur, rule, now)
		})
		if err != nil {
			return domain.TaskRequest{}, requestErr(t.ID, err)
		}
		if err := e.appendTransition(ctx, tx, actor, t.ID, rule, domain.StatusDraft); err != nil {
			return domain.TaskRequest{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRequest{}, err
	}
	e.log().Info("request created", zap.String("request_id", t.ID), zap.String("actor_id", actor.ID), zap.String("status", string(t.Status)))
	return t, nil
}

func (e Engine) resolveCategory(ctx context.Context, tx *sqlx.Tx, id string) (domain.Category, error) {
	if id != "" {
		cat, err := e.Repo.GetCategoryTx(ctx, tx, id)
		if err != nil {
			return cat, categoryErr(id, err)
		}
		return cat, nil
	}
	cat, err := e.Repo.DefaultCategoryTx(ctx, tx)
	if errors.Is(err, repo.ErrNotFound) {
		return cat, domain.Invalid("category_id", "no default category configured")
	}
	return cat, err
}

// UpdateRequestOptions carries a partial update. Nil fields are left alone.
type UpdateRequestOptions struct {
	ID           string
	Title        *string
	Description  *string
	CategoryID   *string
	Priority     *domain.Priority
	DueDate      *time.Time
	ClearDueDate bool
	Notes        *string
	// Submit moves a DRAFT to SUBMITTED in the same write.
	Submit bool
}

func (o UpdateRequestOptions) changed() []string {
	var fields []string
	if o.Title != nil {
		fields = append(fields, "title")
	}
	if o.Description != nil {
		fields = append(fields, "description")
	}
	if o.CategoryID != nil {
		fields = append(fields, "category_id")
	}
	if o.Priority != nil {
		fields = append(fields, "priority")
	}
	if o.DueDate != nil || o.ClearDueDate {
		fields = append(fields, "due_date")
	}
	if o.Notes != nil {
		fields = append(fields, "notes")
	}
	return fields
}

func (e Engine) UpdateRequest(ctx context.Context, actor domain.Actor, opts UpdateRequestOptions) (domain.TaskRequest, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	defer tx.Rollback()

	now := e.now()
	var from domain.Status
	updated, err := e.Repo.ConditionalUpdate(ctx, tx, opts.ID, func(cur domain.TaskRequest) (domain.TaskRequest, error) {
		from = cur.Status
		if !auth.CanEdit(actor, cur) {
			return cur, forbidden(actor, "edit request "+cur.ID)
		}
		next := cur
		if opts.Title != nil {
			if err := checkText("title", *opts.Title, true, MaxTitleLen); err != nil {
				return cur, err
			}
			next.Title = *opts.Title
		}
		if opts.Description != nil {
			if err := checkText("description", *opts.Description, true, MaxDescriptionLen); err != nil {
				return cur, err
			}
			next.Description = *opts.Description
		}
		if opts.Notes != nil {
			if err := checkText("notes", *opts.Notes, false, MaxNotesLen); err != nil {
				return cur, err
			}
			next.Notes = *opts.Notes
		}
		if opts.Priority != nil {
			prio, err := normalizePriority(*opts.Priority)
			if err != nil {
				return cur, err
			}
			next.Priority = prio
		}
		if opts.CategoryID != nil {
			cat, err := e.resolveCategory(ctx, tx, *opts.CategoryID)
			if err != nil {
				return cur, err
			}
			next.CategoryID = cat.ID
		}
		switch {
		case opts.ClearDueDate:
			next.DueDate = nil
		case opts.DueDate != nil:
			next.DueDate = opts.DueDate
		}
		next.UpdatedAt = now
		if opts.Submit {
			rule, _ := auth.Lookup(auth.TransitionSubmit)
			return e.applyRule(actor, next, rule, now)
		}
		return next, nil
	})
	if err != nil {
		return domain.TaskRequest{}, requestErr(opts.ID, err)
	}
	if err := e.appendEvent(ctx, tx, events.RequestUpdated, "request", updated.ID, actor.ID, events.EventPayload{
		"fields": opts.changed(),
	}); err != nil {
		return domain.TaskRequest{}, err
	}
	if opts.Submit {
		rule, _ := auth.Lookup(auth.TransitionSubmit)
		if err := e.appendTransition(ctx, tx, actor, updated.ID, rule, from); err != nil {
			return domain.TaskRequest{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRequest{}, err
	}
	return updated, nil
}

func (e Engine) SubmitRequest(ctx context.Context, actor domain.Actor, id string) (domain.TaskRequest, error) {
	return e.transition(ctx, actor, id, auth.TransitionSubmit)
}

// AssignRequest records actor as the assigner.
func (e Engine) AssignRequest(ctx context.Context, actor domain.Actor, id string) (domain.TaskRequest, error) {
	return e.transition(ctx, actor, id, auth.TransitionAssign)
}

func (e Engine) CompleteRequest(ctx context.Context, actor domain.Actor, id string) (domain.TaskRequest, error) {
	return e.transition(ctx, actor, id, auth.TransitionComplete)
}

func (e Engine) CancelRequest(ctx context.Context, actor domain.Actor, id string) (domain.TaskRequest, error) {
	return e.transition(ctx, actor, id, auth.TransitionCancel)
}

// Transition applies the named transition. Unknown names are a validation error.
func (e Engine) Transition(ctx context.Context, actor domain.Actor, id string, name auth.Transition) (domain.TaskRequest, error) {
	return e.transition(ctx, actor, id, name)
}

func (e Engine) transition(ctx context.Context, actor domain.Actor, id string, name auth.Transition) (domain.TaskRequest, error) {
	rule, ok := auth.Lookup(name)
	if !ok {
		return domain.TaskRequest{}, domain.Invalid("transition", fmt.Sprintf("unknown transition %q", name))
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	defer tx.Rollback()

	now := e.now()
	var from domain.Status
	updated, err := e.Repo.ConditionalUpdate(ctx, tx, id, func(cur domain.TaskRequest) (domain.TaskRequest, error) {
		from = cur.Status
		return e.applyRule(actor, cur, rule, now)
	})
	if err != nil {
		err = requestErr(id, err)
		e.log().Debug("transition rejected", zap.String("request_id", id), zap.String("transition", string(name)), zap.Error(err))
		return domain.TaskRequest{}, err
	}
	if err := e.appendTransition(ctx, tx, actor, id, rule, from); err != nil {
		return domain.TaskRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRequest{}, err
	}
	e.log().Info("request transitioned",
		zap.String("request_id", id),
		zap.String("actor_id", actor.ID),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)))
	return updated, nil
}

// applyRule checks the source status before the actor, so a request in the
// wrong state reports InvalidState regardless of who asks.
func (e Engine) applyRule(actor domain.Actor, cur domain.TaskRequest, rule auth.Rule, now time.Time) (domain.TaskRequest, error) {
	if !rule.AllowsFrom(cur.Status) {
		return cur, &domain.InvalidStateError{Entity: "request", ID: cur.ID, Expected: rule.From, Actual: cur.Status}
	}
	if !rule.Permits(actor, cur) {
		return cur, forbidden(actor, string(rule.Name)+" request "+cur.ID)
	}
	next := cur
	next.Status = rule.To
	next.UpdatedAt = now
	if rule.Name == auth.TransitionAssign {
		assigner := actor.ID
		at := now
		next.AssignerID = &assigner
		next.AssignmentDate = &at
	}
	return next, nil
}

func (e Engine) appendTransition(ctx context.Context, tx *sqlx.Tx, actor domain.Actor, id string, rule auth.Rule, from domain.Status) error {
	return e.appendEvent(ctx, tx, events.RequestTransition, "request", id, actor.ID, events.EventPayload{
		"transition": rule.Name, "from": from, "to": rule.To,
	})
}

func (e Engine) DeleteRequest(ctx context.Context, actor domain.Actor, id string) error {
	if !auth.CanDelete(actor) {
		return forbidden(actor, "delete request "+id)
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetRequestTx(ctx, tx, id)
	if err != nil {
		return requestErr(id, err)
	}
	if err := e.Repo.DeleteRequest(ctx, tx, id); err != nil {
		return requestErr(id, err)
	}
	if err := e.appendEvent(ctx, tx, events.RequestDeleted, "request", id, actor.ID, events.EventPayload{
		"status": t.Status, "title": t.Title,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("request deleted", zap.String("request_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// GetRequest returns the request with its comments and attachments.
func (e Engine) GetRequest(ctx context.Context, id string) (domain.TaskRequest, error) {
	t, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return t, requestErr(id, err)
	}
	return t, nil
}

func (e Engine) ListRequests(ctx context.Context, f repo.RequestFilters) ([]domain.TaskRequest, error) {
	if f.Status != "" {
		st, err := domain.ParseStatus(string(f.Status))
		if err != nil {
			return nil, domain.Invalid("status", err.Error())
		}
		f.Status = st
	}
	return e.Repo.ListRequests(ctx, f)
}
