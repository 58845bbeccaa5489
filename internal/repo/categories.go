package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"taskdesk/internal/domain"
)

const categoryColumns = `id,name,description,color,is_default,created_at`

type categoryRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Color       string         `db:"color"`
	IsDefault   bool           `db:"is_default"`
	CreatedAt   string         `db:"created_at"`
}

func (row categoryRow) toDomain() (domain.Category, error) {
	c := domain.Category{
		ID:        row.ID,
		Name:      row.Name,
		Color:     row.Color,
		IsDefault: row.IsDefault,
	}
	if row.Description.Valid {
		c.Description = row.Description.String
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return domain.Category{}, fmt.Errorf("category %s created_at: %w", row.ID, err)
	}
	c.CreatedAt = created
	return c, nil
}

func (r Repo) InsertCategory(ctx context.Context, tx *sqlx.Tx, c domain.Category) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO categories(`+categoryColumns+`) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Description), c.Color, c.IsDefault, formatTime(c.CreatedAt))
	return err
}

func (r Repo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return getCategory(ctx, r.DB, `WHERE id=?`, id)
}

func (r Repo) GetCategoryTx(ctx context.Context, tx *sqlx.Tx, id string) (domain.Category, error) {
	return getCategory(ctx, tx, `WHERE id=?`, id)
}

// DefaultCategoryTx returns the default category or ErrNotFound when the registry is empty.
func (r Repo) DefaultCategoryTx(ctx context.Context, tx *sqlx.Tx) (domain.Category, error) {
	return getCategory(ctx, tx, `WHERE is_default=1`)
}

func getCategory(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (domain.Category, error) {
	var row categoryRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+categoryColumns+` FROM categories `+where+` LIMIT 1`, args...)
	if err == sql.ErrNoRows {
		return domain.Category{}, ErrNotFound
	}
	if err != nil {
		return domain.Category{}, err
	}
	return row.toDomain()
}

func (r Repo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryRow
	if err := r.DB.SelectContext(ctx, &rows, `SELECT `+categoryColumns+` FROM categories ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, err
	}
	res := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func (r Repo) CountCategoriesTx(ctx context.Context, tx *sqlx.Tx) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM categories`)
	return n, err
}

// UpdateCategoryTx writes name, description and color. The default flag is not touched.
func (r Repo) UpdateCategoryTx(ctx context.Context, tx *sqlx.Tx, c domain.Category) error {
	res, err := tx.ExecContext(ctx, `UPDATE categories SET name=?, description=?, color=? WHERE id=?`,
		c.Name, nullable(c.Description), c.Color, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultTx moves the default flag to id. Both statements run in tx so no
// reader observes zero or two defaults.
func (r Repo) SetDefaultTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE categories SET is_default=0 WHERE is_default=1 AND id<>?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE categories SET is_default=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCategoryTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id=? AND is_default=0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReassignCategoryTx points every request of category from at category to.
func (r Repo) ReassignCategoryTx(ctx context.Context, tx *sqlx.Tx, from, to string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE task_requests SET category_id=? WHERE category_id=?`, to, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) GetCategoryByNameTx(ctx context.Context, tx *sqlx.Tx, name string) (domain.Category, error) {
	return getCategory(ctx, tx, `WHERE name=?`, name)
}
