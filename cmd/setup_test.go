package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readConfig(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	return cfg
}

func serveArgs(t *testing.T, cfg map[string]any) []any {
	t.Helper()
	servers, ok := cfg["mcpServers"].(map[string]any)
	require.True(t, ok)
	server, ok := servers["uaspace"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "uaspace", server["command"])
	args, ok := server["args"].([]any)
	require.True(t, ok)
	return args
}

func TestSetupCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("PrintsConfig", func(t *testing.T) {
		g, out := testGlobals()
		g.Rollback = true

		require.NoError(t, (&SetupCmd{Client: "none"}).Run(g))

		var cfg map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
		assert.Equal(t, []any{"serve", "--rollback"}, serveArgs(t, cfg))
	})

	t.Run("ClaudeCustomPath", func(t *testing.T) {
		dir := t.TempDir()
		g, out := testGlobals("DEV=models/Devices.xml")
		g.ContinueOnError = true

		require.NoError(t, (&SetupCmd{Client: "claude", Path: dir}).Run(g))
		assert.Contains(t, out.String(), "Created claude MCP config")

		args := serveArgs(t, readConfig(t, filepath.Join(dir, "settings.json")))
		require.Len(t, args, 4)
		assert.Equal(t, "--nodeset", args[1])
		spec, _ := args[2].(string)
		assert.True(t, filepath.IsAbs(spec[len("DEV="):]), "path should be absolute: %s", spec)
		assert.Equal(t, "--continue-on-error", args[3])
	})

	t.Run("QwenCustomPath", func(t *testing.T) {
		dir := t.TempDir()
		g, _ := testGlobals()
		g.Dir = dir

		require.NoError(t, (&SetupCmd{Client: "qwen", Path: dir}).Run(g))
		args := serveArgs(t, readConfig(t, filepath.Join(dir, "mcp.json")))
		assert.Equal(t, []any{"serve", "--dir", dir}, args)
	})
}

func TestConfigPath(t *testing.T) {
	t.Parallel()

	path, err := configPath("cursor", "", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".cursor", "mcp.json"), path)

	path, err = configPath("claude", "/tmp/x", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/x", "settings.json"), path)

	path, err = configPath("qwen", "", true)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(".qwen", "mcp.json"), filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
}

func TestWriteConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "mcp.json")
	require.NoError(t, writeConfig(path, map[string]any{"key": "value"}))

	cfg := readConfig(t, path)
	assert.Equal(t, "value", cfg["key"])
}
