package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

func (e Engine) GrantRole(ctx context.Context, actor domain.Actor, targetID string, role domain.Role) error {
	if !auth.CanManageRoles(actor) {
		return forbidden(actor, "manage roles")
	}
	return e.grantRole(ctx, actor.ID, targetID, role)
}

// SeedRole grants without an authorization check. It is used by bootstrap,
// where no authenticated actor exists yet.
func (e Engine) SeedRole(ctx context.Context, targetID string, role domain.Role) error {
	return e.grantRole(ctx, "system", targetID, role)
}

func (e Engine) grantRole(ctx context.Context, actorID, targetID string, role domain.Role) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return domain.Invalid("actor_id", "required")
	}
	role, err := domain.ParseRole(string(role))
	if err != nil {
		return domain.Invalid("role", err.Error())
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, targetID, e.now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if err := e.Repo.GrantRole(ctx, tx, targetID, role); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.RoleGranted, "actor", targetID, actorID, events.EventPayload{"role": role}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, actor domain.Actor, targetID string, role domain.Role) error {
	if !auth.CanManageRoles(actor) {
		return forbidden(actor, "manage roles")
	}
	role, err := domain.ParseRole(string(role))
	if err != nil {
		return domain.Invalid("role", err.Error())
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	removed, err := e.Repo.RevokeRole(ctx, tx, targetID, role)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if !removed {
		return &domain.NotFoundError{Entity: "role grant", ID: targetID + "/" + string(role)}
	}
	if err := e.appendEvent(ctx, tx, events.RoleRevoked, "actor", targetID, actor.ID, events.EventPayload{"role": role}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("role revoked", zap.String("actor_id", targetID), zap.String("role", string(role)))
	return nil
}

func (e Engine) ListActorRoles(ctx context.Context) ([]repo.ActorRoles, error) {
	return e.Repo.ListActorRoles(ctx)
}

// CreateAPIKey mints a key for actorID and returns the plaintext once.
// Only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.APIKey{}, "", domain.Invalid("actor_id", "required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "td_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, actorID, key.CreatedAt); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("ensure actor: %w", err)
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

// IssueAPIKey is CreateAPIKey for an authenticated caller: admins may mint
// keys for anyone, everyone else only for themselves.
func (e Engine) IssueAPIKey(ctx context.Context, actor domain.Actor, targetID, name string) (domain.APIKey, string, error) {
	if !actor.IsAdmin() && actor.ID != strings.TrimSpace(targetID) {
		return domain.APIKey{}, "", forbidden(actor, "issue api key")
	}
	key, plain, err := e.CreateAPIKey(ctx, targetID, name)
	if err != nil {
		return key, plain, err
	}
	e.log().Info("api key issued", zap.String("key_id", key.ID), zap.String("actor_id", key.ActorID), zap.String("by", actor.ID))
	return key, plain, nil
}

// RevokeAPIKey deletes a key owned by the caller, or any key for admins.
func (e Engine) RevokeAPIKey(ctx context.Context, actor domain.Actor, id string) error {
	key, err := e.Repo.GetAPIKey(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &domain.NotFoundError{Entity: "api key", ID: id}
		}
		return err
	}
	if !actor.IsAdmin() && actor.ID != key.ActorID {
		return forbidden(actor, "revoke api key")
	}
	return e.Repo.DeleteAPIKey(ctx, id)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
