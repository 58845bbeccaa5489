package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"taskdesk/internal/config"
	"taskdesk/internal/domain"
)

func TestBootstrapSeedsOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("root")), 0o644))

	ws, err := Open(dir, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Equal(t, 1, ws.SchemaVersion)

	ctx := context.Background()
	report, err := Bootstrap(ctx, ws.Engine, ws.Config)
	require.NoError(t, err)
	require.Equal(t, []string{"General", "IT", "Facilities"}, report.Categories)
	require.Equal(t, "General", report.Default)
	require.Equal(t, 4, report.Grants)

	again, err := Bootstrap(ctx, ws.Engine, ws.Config)
	require.NoError(t, err)
	require.Empty(t, again.Categories)
	require.Equal(t, "General", again.Default)

	cats, err := ws.Engine.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 3)

	who, err := ws.Engine.WhoAmI(ctx, "root")
	require.NoError(t, err)
	require.True(t, who.IsAdmin())
	require.True(t, who.HasRole(domain.RoleExecutor))
}

func TestBootstrapPicksFirstWhenNoDefaultSeeded(t *testing.T) {
	ws, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer ws.Close()

	cfg := &config.Config{Categories: []config.CategorySeed{
		{Name: "Ops", Color: "red"},
		{Name: "Dev", Color: "blue"},
	}}
	report, err := Bootstrap(context.Background(), ws.Engine, cfg)
	require.NoError(t, err)
	require.Equal(t, "Ops", report.Default)
	require.Zero(t, report.Grants)
}

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	ws, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Empty(t, ws.Config.Actors)
	require.Equal(t, "/v0", ws.Config.Server.BasePath)
}
