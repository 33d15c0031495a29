package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benzoXdev/debatch/internal/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// TestLoadMissingFile ensures a missing file yields the defaults.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "unsupported", cfg.Caret)
	require.NotNil(t, cfg.HostEnv)
	assert.True(t, *cfg.HostEnv)
	assert.NoError(t, Validate(cfg))
}

// TestLoadAppliesDefaults ensures fields left out of the file get defaults.
func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "stages: resolve,final\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "unsupported", cfg.Caret)
	assert.True(t, *cfg.HostEnv)
	assert.NotNil(t, cfg.Environment)
	assert.Equal(t, "resolve,final", cfg.Stages)
}

// TestLoadFull ensures every field round-trips into engine options.
func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
caret: xor
host_env: false
legacy_charset: ibm850
stages: resolve,junk
environment:
  computername: LAB-PC
commands: [xcopy, robocopy]
junk_rules:
  - name: lab-beacon
    category: custom
    pattern: '(?i)^curl .*beacon'
disable_rules: [anti-vm-wmic]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	var opts engine.Options
	require.NoError(t, cfg.Apply(&opts))
	assert.Equal(t, engine.CaretXor, opts.Caret)
	assert.False(t, opts.HostEnv)
	assert.Equal(t, "ibm850", opts.LegacyCharset)
	assert.Equal(t, "resolve,junk", opts.Stages)
	assert.Equal(t, map[string]string{"computername": "LAB-PC"}, opts.ExtraEnv)
	assert.Equal(t, []string{"xcopy", "robocopy"}, opts.ExtraCommands)
	require.Len(t, opts.ExtraRules, 1)
	assert.Equal(t, "lab-beacon", opts.ExtraRules[0].Name)
	assert.Equal(t, []string{"anti-vm-wmic"}, opts.DisabledRules)
}

// TestLoadBadYAML ensures syntax errors name the file.
func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "caret: [unterminated\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

// TestMarshalDefault ensures the default config survives a YAML round trip.
func TestMarshalDefault(t *testing.T) {
	b, err := Marshal(Default())
	require.NoError(t, err)
	path := writeConfig(t, string(b))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Caret, cfg.Caret)
	assert.Equal(t, *Default().HostEnv, *cfg.HostEnv)
	assert.Empty(t, cfg.Environment)
	assert.Empty(t, cfg.JunkRules)
	assert.NoError(t, Validate(cfg))
}
