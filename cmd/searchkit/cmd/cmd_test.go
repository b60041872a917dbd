package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv isolates a command run: HOME, user config and the working
// directory point at temp dirs and SEARCHKIT_* overrides are cleared.
type testEnv struct {
	t     *testing.T
	dir   string
	index string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "SEARCHKIT_") {
			t.Setenv(key, "")
		}
	}

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Chdir(dir)
	return &testEnv{t: t, dir: dir, index: filepath.Join(dir, ".searchkit", "index")}
}

// run executes the CLI with args against the env's index.
func (e *testEnv) run(args ...string) (string, error) {
	return e.runWithInput(context.Background(), "", args...)
}

func (e *testEnv) runWithInput(ctx context.Context, stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--index", e.index}, args...))

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		_ = stopProfilingAndLogging(cmd, nil)
	}
	return buf.String(), err
}

// mustRun fails the test when the command fails.
func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "searchkit %s\n%s", strings.Join(args, " "), out)
	return out
}

// writeFiles creates files below the env's dir.
func (e *testEnv) writeFiles(files map[string]string) {
	e.t.Helper()
	for name, content := range files {
		path := filepath.Join(e.dir, name)
		require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(e.t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{
		"index", "add-text", "search", "documents", "remove", "terms", "cleanup",
		"compact", "watch", "serve", "status", "stats", "doctor", "config", "logs", "version",
	}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"debug", "no-color", "index", "profile-cpu", "profile-mem", "profile-trace", "profile-goroutines"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestLoggingConfig(t *testing.T) {
	t.Cleanup(func() { debugMode = false })

	// Given: debug disabled
	debugMode = false

	// Then: commands log to the file only, at info
	cfg := loggingConfig("search")
	assert.Equal(t, "info", cfg.Level)
	assert.False(t, cfg.WriteToStderr)
	assert.NotEmpty(t, cfg.FilePath)

	// Given: debug enabled
	debugMode = true

	// Then: stderr is added, serve still keeps stdio clean
	cfg = loggingConfig("search")
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.WriteToStderr)
	assert.False(t, loggingConfig("serve").WriteToStderr)
}

func TestProfiling_WritesRequestedProfile(t *testing.T) {
	env := newTestEnv(t)
	profile := filepath.Join(env.dir, "heap.pprof")

	env.mustRun("--profile-mem", profile, "version")

	info, err := os.Stat(profile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
