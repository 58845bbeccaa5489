package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

type CategoryInput struct {
	Name        string
	Description string
	Color       string
}

// CategoryPatch is a partial category update. Nil fields are left alone.
type CategoryPatch struct {
	Name        *string
	Description *string
	Color       *string
}

func checkCategory(c domain.Category) error {
	if err := checkText("name", c.Name, true, MaxCategoryNameLen); err != nil {
		return err
	}
	return checkText("color", c.Color, true, 0)
}

// CreateCategory adds a category. The first category of an empty registry
// becomes the default.
func (e Engine) CreateCategory(ctx context.Context, actor domain.Actor, in CategoryInput) (domain.Category, error) {
	if !auth.CanManageCategories(actor) {
		return domain.Category{}, forbidden(actor, "manage categories")
	}
	c := domain.Category{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Color:       strings.TrimSpace(in.Color),
		CreatedAt:   e.now(),
	}
	if err := checkCategory(c); err != nil {
		return domain.Category{}, err
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Category{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.CountCategoriesTx(ctx, tx)
	if err != nil {
		return domain.Category{}, err
	}
	c.IsDefault = n == 0
	if err := e.Repo.InsertCategory(ctx, tx, c); err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.CategoryCreated, "category", c.ID, actor.ID, events.EventPayload{
		"name": c.Name, "is_default": c.IsDefault,
	}); err != nil {
		return domain.Category{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (e Engine) UpdateCategory(ctx context.Context, actor domain.Actor, id string, patch CategoryPatch) (domain.Category, error) {
	if !auth.CanManageCategories(actor) {
		return domain.Category{}, forbidden(actor, "manage categories")
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Category{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCategoryTx(ctx, tx, id)
	if err != nil {
		return domain.Category{}, categoryErr(id, err)
	}
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Color != nil {
		c.Color = strings.TrimSpace(*patch.Color)
	}
	if err := checkCategory(c); err != nil {
		return domain.Category{}, err
	}
	if err := e.Repo.UpdateCategoryTx(ctx, tx, c); err != nil {
		return domain.Category{}, categoryErr(id, err)
	}
	if err := e.appendEvent(ctx, tx, events.CategoryUpdated, "category", c.ID, actor.ID, events.EventPayload{
		"name": c.Name, "color": c.Color,
	}); err != nil {
		return domain.Category{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

// SetDefaultCategory makes id the only default category.
func (e Engine) SetDefaultCategory(ctx context.Context, actor domain.Actor, id string) (domain.Category, error) {
	if !auth.CanManageCategories(actor) {
		return domain.Category{}, forbidden(actor, "manage categories")
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Category{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCategoryTx(ctx, tx, id)
	if err != nil {
		return domain.Category{}, categoryErr(id, err)
	}
	var previous string
	if cur, err := e.Repo.DefaultCategoryTx(ctx, tx); err == nil {
		previous = cur.ID
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Category{}, err
	}
	if err := e.Repo.SetDefaultTx(ctx, tx, id); err != nil {
		return domain.Category{}, categoryErr(id, err)
	}
	if err := e.appendEvent(ctx, tx, events.CategoryDefaultSet, "category", id, actor.ID, events.EventPayload{
		"previous": previous,
	}); err != nil {
		return domain.Category{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Category{}, err
	}
	c.IsDefault = true
	e.log().Info("default category changed", zap.String("category_id", id), zap.String("previous", previous))
	return c, nil
}

// DeleteCategory removes a non-default category. Requests that used it are
// moved to the default category in the same transaction.
func (e Engine) DeleteCategory(ctx context.Context, actor domain.Actor, id string) error {
	if !auth.CanManageCategories(actor) {
		return forbidden(actor, "manage categories")
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCategoryTx(ctx, tx, id)
	if err != nil {
		return categoryErr(id, err)
	}
	if c.IsDefault {
		return &domain.InvalidStateError{Entity: "category", ID: id, Reason: "the default category cannot be deleted"}
	}
	var moved int64
	def, err := e.Repo.DefaultCategoryTx(ctx, tx)
	switch {
	case err == nil:
		if moved, err = e.Repo.ReassignCategoryTx(ctx, tx, id, def.ID); err != nil {
			return fmt.Errorf("reassign requests: %w", err)
		}
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}
	if err := e.Repo.DeleteCategoryTx(ctx, tx, id); err != nil {
		return categoryErr(id, err)
	}
	if err := e.appendEvent(ctx, tx, events.CategoryDeleted, "category", id, actor.ID, events.EventPayload{
		"name": c.Name, "reassigned": moved, "to": def.ID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	c, err := e.Repo.GetCategory(ctx, id)
	if err != nil {
		return c, categoryErr(id, err)
	}
	return c, nil
}

func (e Engine) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return e.Repo.ListCategories(ctx)
}
