package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/testutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "haybind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HAYBIND_CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 16, cfg.Write.Level)
	assert.Equal(t, 5*time.Second, cfg.Watch.PollInterval)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
db:
  path: /tmp/site.db
watch:
  pollInterval: 2s
write:
  level: 8
  who: operator
log:
  level: debug
opsOnly: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/site.db", cfg.DB.Path)
	assert.Equal(t, 2*time.Second, cfg.Watch.PollInterval)
	assert.Equal(t, 8, cfg.Write.Level)
	assert.Equal(t, "operator", cfg.Write.Who)
	assert.True(t, cfg.OpsOnly)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_PathFromEnv(t *testing.T) {
	t.Setenv("HAYBIND_CONFIG_PATH", writeFile(t, "db:\n  path: from-env.db\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DB.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "write:\n  level: 8\n  who: operator\n")
	t.Setenv("HAYBIND_DB_PATH", "env.db")
	t.Setenv("HAYBIND_POLL_INTERVAL", "250ms")
	t.Setenv("HAYBIND_OPS_ONLY", "true")
	t.Setenv("HAYBIND_WRITE_LEVEL", "10")
	t.Setenv("HAYBIND_WHO", "ci")
	t.Setenv("HAYBIND_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DB.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.PollInterval)
	assert.True(t, cfg.OpsOnly)
	assert.Equal(t, 10, cfg.Write.Level)
	assert.Equal(t, "ci", cfg.Write.Who)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
		want string
	}{
		{name: "bad interval", env: map[string]string{"HAYBIND_POLL_INTERVAL": "soon"}, want: "HAYBIND_POLL_INTERVAL"},
		{name: "bad bool", env: map[string]string{"HAYBIND_OPS_ONLY": "maybe"}, want: "HAYBIND_OPS_ONLY"},
		{name: "bad level", env: map[string]string{"HAYBIND_WRITE_LEVEL": "x"}, want: "HAYBIND_WRITE_LEVEL"},
		{name: "level range", env: map[string]string{"HAYBIND_WRITE_LEVEL": "18"}, want: "write.level"},
		{name: "log level", env: map[string]string{"HAYBIND_LOG_LEVEL": "loud"}, want: "log.level"},
		{name: "bad yaml", file: "db: [", want: "parse config file"},
		{name: "negative poll", file: "watch:\n  pollInterval: -1s\n", want: "pollInterval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestEnvOptions(t *testing.T) {
	cfg := Default()
	cfg.OpsOnly = true
	cfg.Watch.PollInterval = time.Second
	cfg.Write = WriteConfig{Level: 9, Who: "me"}

	env := binding.NewEnvironment(testutil.NewFakeClient(), cfg.EnvOptions()...)
	assert.True(t, env.OpsOnly)
	assert.Equal(t, time.Second, env.PollInterval)
	assert.Equal(t, 9, env.WriteLevel)
	assert.Equal(t, "me", env.Who)
}
