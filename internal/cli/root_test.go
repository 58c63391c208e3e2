package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobals() {
	configFile = ""
	databaseURL = ""
	driverName = ""
	debug = false
	pantryConfig = nil
	costAsOf = ""
	historyVerbose = false
	createIfNotExists = false
	initPath = "pantry.yaml"
	initForce = false
}

// execute runs the root command with args and returns what it printed
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetGlobals()
	t.Cleanup(resetGlobals)

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

// sqliteArgs points the command at a fresh SQLite file in an empty working
// directory
func sqliteArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return []string{"--driver", "sqlite", "--url", filepath.Join(dir, "pantry.db")}
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "pantry", cmd.Use)
	assert.NotEmpty(t, cmd.Version)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"init", "migrate", "report", "version"} {
		assert.Contains(t, names, expected)
	}

	for _, flag := range []string{"config", "url", "driver", "debug"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	configPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, writeFile(configPath, "database:\n  driver: sqlite\n  url: from-file.db\nmigrations:\n  table: kitchen_history\n"))

	t.Run("file values", func(t *testing.T) {
		_, _, err := execute(t, "--config", configPath, "migrate", "status")
		require.NoError(t, err)
		assert.Equal(t, "from-file.db", pantryConfig.Database.URL)
		assert.Equal(t, "kitchen_history", pantryConfig.Migrations.Table)
		assert.Equal(t, "info", pantryConfig.Log.Level)
	})

	t.Run("flags override the file", func(t *testing.T) {
		_, _, err := execute(t, "--config", configPath, "--url", "from-flag.db", "--debug", "migrate", "status")
		require.NoError(t, err)
		assert.Equal(t, "from-flag.db", pantryConfig.Database.URL)
		assert.Equal(t, "debug", pantryConfig.Log.Level)
	})

	t.Run("invalid driver", func(t *testing.T) {
		_, _, err := execute(t, "--config", configPath, "--driver", "mysql", "migrate", "status")
		assert.ErrorContains(t, err, "invalid database driver")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, _, err := execute(t, "--config", filepath.Join(dir, "missing.yaml"), "migrate", "status")
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestVersionCommand(t *testing.T) {
	// version works without any configuration
	stdout, _, err := execute(t, "--config", "/non/existent/pantry.yaml", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "pantry ")
	assert.Contains(t, stdout, "Schema Version: ")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	stdout, _, err := execute(t, "--driver", "postgres", "--url", "postgres://localhost/pantry", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created pantry.yaml")

	_, _, err = execute(t, "init")
	assert.ErrorContains(t, err, "already exists")

	_, _, err = execute(t, "init", "--force")
	require.NoError(t, err)

	_, _, err = execute(t, "--driver", "oracle", "init", "--path", "other.yaml")
	assert.ErrorContains(t, err, "unsupported")
}
