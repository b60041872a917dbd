package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchkit/internal/config"
)

func TestConfigInit_CreatesProjectFile(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("config", "init")

	path := filepath.Join(env.dir, config.ProjectConfigName)
	assert.Contains(t, out, "Created configuration")
	assert.FileExists(t, path)

	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Search, loaded.Search)
}

func TestConfigInit_ExistingNeedsForce(t *testing.T) {
	// Given: a project config with a custom limit
	env := newTestEnv(t)
	path := filepath.Join(env.dir, config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("search:\n  limit: 42\n"), 0644))

	// When: running init without --force
	out := env.mustRun("config", "init")

	// Then: the file is untouched
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "search:\n  limit: 42\n", string(data))

	// When: forcing
	out = env.mustRun("config", "init", "--force")

	// Then: a backup exists and the custom value survives the upgrade
	assert.Contains(t, out, "Configuration upgraded")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.Limit)
	assert.Equal(t, config.NewConfig().Annotate, loaded.Annotate)
}

func TestConfigInit_User(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun("config", "init", "--user")

	assert.FileExists(t, config.GetUserConfigPath())
	assert.NoFileExists(t, filepath.Join(env.dir, config.ProjectConfigName))
}

func TestConfigShow_Sources(t *testing.T) {
	// Given: a project config and an env override
	env := newTestEnv(t)
	path := filepath.Join(env.dir, config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("search:\n  limit: 42\n"), 0644))
	t.Setenv("SEARCHKIT_SEARCH_LIMIT", "7")

	show := func(source string) *config.Config {
		out := env.mustRun("config", "show", "--json", "--source", source)
		var cfg config.Config
		require.NoError(t, json.Unmarshal([]byte(out), &cfg))
		return &cfg
	}

	// Then: each source reports its own view
	assert.Equal(t, 7, show("merged").Search.Limit)
	assert.Equal(t, 42, show("project").Search.Limit)
	assert.Equal(t, config.NewConfig().Search.Limit, show("defaults").Search.Limit)
}

func TestConfigShow_MissingUserFile(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("config", "show", "--source", "user")

	assert.Contains(t, out, "No user configuration file found")
}

func TestConfigShow_InvalidSource(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("config", "show", "--source", "remote")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source")
}

func TestConfigShow_YAML(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("config", "show", "--source", "defaults")

	assert.Contains(t, out, "Configuration source: defaults")
	assert.Contains(t, out, "search:")
}

func TestConfigPath(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("config", "path")

	assert.Contains(t, out, config.GetUserConfigPath())
	assert.Contains(t, out, filepath.Join(env.dir, config.ProjectConfigName))
}
