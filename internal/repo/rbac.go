package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"taskdesk/internal/domain"
)

type ActorRoles struct {
	ActorID string        `json:"actor_id"`
	Roles   []domain.Role `json:"roles"`
}

func (r Repo) EnsureActor(ctx context.Context, tx *sqlx.Tx, actorID string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) GrantRole(ctx context.Context, tx *sqlx.Tx, actorID string, role domain.Role) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role) VALUES (?,?)`, actorID, string(role))
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sqlx.Tx, actorID string, role domain.Role) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role=?`, actorID, string(role))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListActorRoles returns every known actor with its roles, actors without roles included.
func (r Repo) ListActorRoles(ctx context.Context) ([]ActorRoles, error) {
	var rows []struct {
		ActorID string  `db:"id"`
		Role    *string `db:"role"`
	}
	if err := r.DB.SelectContext(ctx, &rows, `SELECT a.id, ar.role FROM actors a
LEFT JOIN actor_roles ar ON ar.actor_id=a.id
ORDER BY a.id, ar.role`); err != nil {
		return nil, err
	}
	var res []ActorRoles
	for _, row := range rows {
		if len(res) == 0 || res[len(res)-1].ActorID != row.ActorID {
			res = append(res, ActorRoles{ActorID: row.ActorID, Roles: []domain.Role{}})
		}
		if row.Role != nil {
			last := &res[len(res)-1]
			last.Roles = append(last.Roles, domain.Role(*row.Role))
		}
	}
	return res, nil
}
