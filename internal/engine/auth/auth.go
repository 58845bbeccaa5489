package auth

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"taskdesk/internal/domain"
)

// ForbiddenError indicates the actor lacks the role or identity for an action.
type ForbiddenError struct {
	Action  string
	ActorID string
}

func (e ForbiddenError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("not allowed to %s", e.Action)
	}
	return fmt.Sprintf("actor %s is not allowed to %s", e.ActorID, e.Action)
}

// RoleResolver yields the role set of an already authenticated actor.
type RoleResolver interface {
	ActorRoles(ctx context.Context, actorID string) ([]domain.Role, error)
}

// Service resolves roles from the actor_roles table.
type Service struct {
	DB *sqlx.DB
}

func (s Service) ActorRoles(ctx context.Context, actorID string) ([]domain.Role, error) {
	var raw []string
	if err := s.DB.SelectContext(ctx, &raw, `SELECT role FROM actor_roles WHERE actor_id=? ORDER BY role`, actorID); err != nil {
		return nil, err
	}
	roles := make([]domain.Role, 0, len(raw))
	for _, r := range raw {
		role, err := domain.ParseRole(r)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// ResolveActor builds an Actor from stored roles merged with extra claims.
func ResolveActor(ctx context.Context, rr RoleResolver, actorID string, claimed ...domain.Role) (domain.Actor, error) {
	a := domain.Actor{ID: actorID}
	stored, err := rr.ActorRoles(ctx, actorID)
	if err != nil {
		return a, err
	}
	a.Roles = MergeRoles(stored, claimed)
	return a, nil
}

// MergeRoles returns the sorted union of the given role sets.
func MergeRoles(sets ...[]domain.Role) []domain.Role {
	seen := map[domain.Role]bool{}
	var out []domain.Role
	for _, set := range sets {
		for _, r := range set {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
