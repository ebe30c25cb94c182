package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/spamguard-go/internal/app"
	"github.com/tphakala/spamguard-go/internal/buildinfo"
)

// Commands share the global viper instance, so these tests do not run in parallel.

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`server:
  listen: 127.0.0.1:0
database:
  type: sqlite
  sqlite:
    path: %s
models:
  dir: %s
verifier:
  enabled: false
security:
  jwtsecret: cli-test-jwt-secret
  sessionsecret: cli-test-session-secret
mqtt:
  enabled: false
telemetry:
  enabled: false
logging:
  console:
    enabled: true
    level: error
  fileoutput:
    enabled: false
  modules:
    access:
      enabled: false
    auth:
      enabled: false
`, filepath.Join(dir, "cli.db"), filepath.Join(dir, "models"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (*app.Context, string, error) {
	t.Helper()
	appCtx := app.NewContext(buildinfo.NewContext("1.0.0-test", "2026-01-01"))
	t.Cleanup(appCtx.Shutdown)

	root := RootCommand(appCtx)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return appCtx, out.String(), err
}

func TestVersionNeedsNoConfig(t *testing.T) {
	appCtx, out, err := execute(t, "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "spamguard 1.0.0-test (built 2026-01-01")
	assert.Nil(t, appCtx.Settings)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfg := writeConfig(t)

	appCtx, out, err := execute(t, "config", "show", "--config", cfg)
	require.NoError(t, err)
	require.NotNil(t, appCtx.Settings)
	assert.Contains(t, out, "jwtsecret:")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "cli-test-jwt-secret")
	assert.Contains(t, out, "listen: 127.0.0.1:0")
}

func TestDebugFlagOverridesConfig(t *testing.T) {
	cfg := writeConfig(t)

	appCtx, _, err := execute(t, "config", "show", "--debug", "--config", cfg)
	require.NoError(t, err)
	assert.True(t, appCtx.Settings.Debug)
}

func TestMissingConfigFileFails(t *testing.T) {
	_, _, err := execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestUserLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	_, out, err := execute(t, "user", "add", "--config", cfg,
		"--username", "alice", "--email", "alice@example.com", "--password", "secret123")
	require.NoError(t, err)
	assert.Contains(t, out, "created user alice")

	_, _, err = execute(t, "user", "add", "--config", cfg,
		"--username", "alice", "--email", "other@example.com", "--password", "secret123")
	require.Error(t, err, "duplicate username")

	_, _, err = execute(t, "user", "add", "--config", cfg,
		"--username", "bob", "--email", "bob@example.com", "--password", "123")
	require.Error(t, err, "short password")

	_, out, err = execute(t, "user", "stats", "alice", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "alice"`)
	assert.Contains(t, out, `"total_searches": 0`)

	_, out, err = execute(t, "user", "list", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "alice@example.com")

	_, out, err = execute(t, "user", "delete", "alice", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted user alice")

	_, _, err = execute(t, "user", "stats", "alice", "--config", cfg)
	require.Error(t, err)
}

func TestExtractTextFile(t *testing.T) {
	cfg := writeConfig(t)
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("claim your reward today"), 0o600))

	_, out, err := execute(t, "extract", path, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "claim your reward today")

	_, _, err = execute(t, "extract", filepath.Join(t.TempDir(), "run.exe"), "--config", cfg)
	require.ErrorContains(t, err, "unsupported file type")
}

func TestClassifyErrors(t *testing.T) {
	cfg := writeConfig(t)

	_, _, err := execute(t, "classify", "--type", "fax", "hello", "--config", cfg)
	require.ErrorContains(t, err, `unknown content type "fax"`)

	// the models directory is empty
	_, _, err = execute(t, "classify", "--type", "sms", "hello there", "--config", cfg)
	require.Error(t, err)

	_, _, err = execute(t, "classify", "hello", "--config", cfg)
	require.ErrorContains(t, err, "required flag")
}

func TestConfigPathAndExport(t *testing.T) {
	cfg := writeConfig(t)

	_, out, err := execute(t, "config", "path", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg+"\n", out)

	exported := filepath.Join(t.TempDir(), "exported.yaml")
	_, out, err = execute(t, "config", "export", exported, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, exported)

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cli-test-jwt-secret")

	// the exported file loads back
	appCtx, _, err := execute(t, "config", "show", "--config", exported)
	require.NoError(t, err)
	assert.Equal(t, "cli-test-jwt-secret", appCtx.Settings.Security.JWTSecret)
}
