package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pathsTestConfig = `version: 1
environments:
  production:
    vault_url: https://vault.example.com
    apps:
      web:
        paths:
          - path: team/web
            format: dotenv_export
            key: dotenv
      worker:
        paths:
          - path: team/worker
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rotavault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewPathsCommand(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "rotavault.yaml")
	cmd := NewPathsCommand(cfg)

	assert.Equal(t, "paths", cmd.Use)
	flags := cmd.Flags()
	assert.NotNil(t, flags.Lookup("env"))
	assert.NotNil(t, flags.Lookup("app"))
	assert.NotNil(t, flags.Lookup("check"))
}

func TestPathsCommandListsConfiguredPaths(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, writeTestConfig(t, pathsTestConfig))
	cmd := NewPathsCommand(cfg)

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--env", "production"})

	require.NoError(t, cmd.Execute())

	out := stdout.String()
	assert.Contains(t, out, "team/web [dotenv_export] key=dotenv")
	assert.Contains(t, out, "team/worker")
	assert.Contains(t, out, "web")
	assert.Contains(t, out, "worker")
}

func TestPathsCommandFiltersByApp(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, writeTestConfig(t, pathsTestConfig))
	cmd := NewPathsCommand(cfg)

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--env", "production", "--app", "worker"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "team/worker")
	assert.NotContains(t, stdout.String(), "team/web")
}

func TestPathsCommandUnknownEnvironment(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, writeTestConfig(t, pathsTestConfig))
	cmd := NewPathsCommand(cfg)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "production")
}
