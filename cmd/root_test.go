// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestInitializeConfig(t *testing.T) {
	t.Run("explicit config file wins over defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine:\n  model: gemini-test\nlogger:\n  level: debug\n"), 0o644))

		cfgFile = path
		t.Cleanup(func() { cfgFile = "" })

		require.NoError(t, initializeConfig())
		assert.Equal(t, "gemini-test", viper.GetString("engine.model"))
		assert.Equal(t, "debug", viper.GetString("logger.level"))
		// Untouched keys keep their defaults.
		assert.Equal(t, 30, viper.GetInt("engine.max_steps"))
	})

	t.Run("missing config file falls back to defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		cfgFile = ""

		require.NoError(t, initializeConfig())
		assert.Equal(t, "novaact-mcp", viper.GetString("server.name"))
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		cfgFile = ""
		t.Setenv("NOVAACT_MCP_LOGGER_LEVEL", "warn")

		require.NoError(t, initializeConfig())
		assert.Equal(t, "warn", viper.GetString("logger.level"))
	})
}
