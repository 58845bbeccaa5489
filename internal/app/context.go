package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/events"
	"taskdesk/internal/migrate"
	"taskdesk/internal/repo"
)

// Workspace is an opened database plus the config it was seeded from.
type Workspace struct {
	Engine engine.Engine
	Config *config.Config
	// SchemaVersion is the migration level after Open.
	SchemaVersion int
}

func (w Workspace) Close() error {
	return w.Engine.DB.Close()
}

// Open opens and migrates the workspace database. A missing taskdesk.yml is
// not an error; defaults are used with no seeded actors.
func Open(dir string, log *zap.Logger) (Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return Workspace{}, err
	}
	if cfg == nil {
		cfg = config.Default("admin")
		cfg.Actors = nil
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return Workspace{}, err
	}
	version, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return Workspace{}, fmt.Errorf("migrate: %w", err)
	}
	return Workspace{Engine: engine.New(conn, log), Config: cfg, SchemaVersion: version}, nil
}

// SeedReport lists what Bootstrap changed.
type SeedReport struct {
	Categories []string `json:"categories_created"`
	Default    string   `json:"default_category,omitempty"`
	Grants     int      `json:"role_grants"`
}

// Bootstrap applies the seed section of cfg. Categories are matched by name
// and never duplicated, so running it twice is harmless.
func Bootstrap(ctx context.Context, eng engine.Engine, cfg *config.Config) (SeedReport, error) {
	var report SeedReport
	if cfg == nil {
		return report, nil
	}
	if err := seedCategories(ctx, eng, cfg.Categories, &report); err != nil {
		return report, err
	}
	actorIDs := make([]string, 0, len(cfg.Actors))
	for id := range cfg.Actors {
		actorIDs = append(actorIDs, id)
	}
	sort.Strings(actorIDs)
	for _, id := range actorIDs {
		for _, raw := range cfg.Actors[id] {
			role, err := domain.ParseRole(raw)
			if err != nil {
				return report, err
			}
			if err := eng.SeedRole(ctx, id, role); err != nil {
				return report, fmt.Errorf("seed %s %s: %w", id, role, err)
			}
			report.Grants++
		}
	}
	log := eng.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("workspace seeded",
		zap.Strings("categories", report.Categories),
		zap.String("default", report.Default),
		zap.Int("grants", report.Grants))
	return report, nil
}

func seedCategories(ctx context.Context, eng engine.Engine, seeds []config.CategorySeed, report *SeedReport) error {
	r := eng.Repo
	tx, err := eng.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	clock := eng.Now
	if clock == nil {
		clock = time.Now
	}
	now := clock().UTC()
	w := events.Writer{Now: clock}
	var wantDefault, first string
	for _, s := range seeds {
		c, err := r.GetCategoryByNameTx(ctx, tx, s.Name)
		if errors.Is(err, repo.ErrNotFound) {
			c = domain.Category{ID: uuid.NewString(), Name: s.Name, Description: s.Description, Color: s.Color, CreatedAt: now}
			if err := r.InsertCategory(ctx, tx, c); err != nil {
				return fmt.Errorf("seed category %s: %w", s.Name, err)
			}
			if err := w.Append(ctx, tx, events.CategoryCreated, "category", c.ID, "system", events.EventPayload{"name": c.Name, "seed": true}); err != nil {
				return err
			}
			report.Categories = append(report.Categories, c.Name)
		} else if err != nil {
			return err
		}
		if first == "" {
			first = c.ID
		}
		if s.Default {
			wantDefault = c.ID
		}
	}
	current, err := r.DefaultCategoryTx(ctx, tx)
	switch {
	case err == nil:
		report.Default = current.Name
	case errors.Is(err, repo.ErrNotFound):
		target := wantDefault
		if target == "" {
			target = first
		}
		if target != "" {
			if err := r.SetDefaultTx(ctx, tx, target); err != nil {
				return fmt.Errorf("seed default category: %w", err)
			}
			c, err := r.GetCategoryTx(ctx, tx, target)
			if err != nil {
				return err
			}
			report.Default = c.Name
		}
	default:
		return err
	}
	return tx.Commit()
}
