package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	fileDir := t.TempDir()
	flagDir := t.TempDir()
	cfgPath := writeConfig(t, "allowed_directories: ["+fileDir+"]\ntransport: http\nport: 9100\nlog_level: debug\n")

	cmd, opts := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--allow", flagDir, "--port", "9200", "--lock-edits"}))
	cfg, err := loadConfig(cmd, nil, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{flagDir}, cfg.AllowedDirectories)
	assert.Equal(t, "http", cfg.Transport, "unset flags keep file values")
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LockEdits)
}

func TestLoadConfig_PositionalDirectories(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	cfgPath := writeConfig(t, "transport: stdio\n")

	cmd, opts := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--allow", a}))
	cfg, err := loadConfig(cmd, []string{b}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, cfg.AllowedDirectories)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cfgPath := writeConfig(t, "transport: stdio\n")

	cmd, opts := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath}))
	_, err := loadConfig(cmd, nil, opts)
	assert.ErrorContains(t, err, "at least one allowed directory is required")

	cmd, opts = newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--allow", t.TempDir(), "--transport", "grpc"}))
	_, err = loadConfig(cmd, nil, opts)
	assert.ErrorContains(t, err, "transport must be 'http' or 'stdio'")
}

func TestRootCmd_Tools(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"tools"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "TOOL"))
	assert.Contains(t, out.String(), "replace_line_range")
	assert.Contains(t, out.String(), "execute_command")
}

func TestRootCmd_Version(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "hybrid-filesystem "+version+"\n", out.String())
}

func TestRootCmd_ServeStdio(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, "transport: stdio\n")
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	var out, logs bytes.Buffer

	root := newRootCmd()
	root.SetIn(in)
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs([]string{"serve", "--config", cfgPath, dir})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), `"id":1`)
	assert.NotContains(t, out.String(), "Effective configuration", "logs stay off the protocol channel")
	assert.Contains(t, logs.String(), "Effective configuration")
}
