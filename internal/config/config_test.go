package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("root")
	require.Len(t, cfg.Categories, 3)
	require.True(t, cfg.Categories[0].Default)
	require.Equal(t, []string{"ADMIN", "REQUESTER", "ASSIGNER", "EXECUTOR"}, cfg.Actors["root"])
	require.Equal(t, "/v0", cfg.Server.BasePath)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestValidateRejectsTwoDefaults(t *testing.T) {
	_, err := FromYAML([]byte(`categories:
  - {name: A, color: red, default: true}
  - {name: B, color: blue, default: true}
`))
	require.ErrorContains(t, err, "at most one default")
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	_, err := FromYAML([]byte(`actors:
  bob: [OWNER]
`))
	require.ErrorContains(t, err, "unknown role")
}

func TestValidateRequiresColor(t *testing.T) {
	_, err := FromYAML([]byte(`categories:
  - {name: A}
`))
	require.ErrorContains(t, err, "color is required")
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault("alice")), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Contains(t, cfg.Actors, "alice")
}
