package engine

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

type Engine struct {
	DB     *sqlx.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Log    *zap.Logger
	Now    func() time.Time
}

func New(db *sqlx.DB, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{},
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) appendEvent(ctx context.Context, tx *sqlx.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// WhoAmI resolves the stored roles of actorID.
func (e Engine) WhoAmI(ctx context.Context, actorID string) (domain.Actor, error) {
	return auth.ResolveActor(ctx, e.Auth, actorID)
}

func requestErr(id string, err error) error {
	switch {
	case errors.Is(err, repo.ErrStatusMismatch):
		return &domain.InvalidStateError{Entity: "request", ID: id, Reason: "status changed concurrently"}
	case errors.Is(err, repo.ErrNotFound):
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return &domain.NotFoundError{Entity: "request", ID: id}
	}
	return err
}

func categoryErr(id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return &domain.NotFoundError{Entity: "category", ID: id}
	}
	return err
}

func forbidden(a domain.Actor, action string) error {
	return auth.ForbiddenError{Action: action, ActorID: a.ID}
}
