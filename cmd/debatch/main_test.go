package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const script = "set KDOT=abc\r\nset a=x\r\necho %a% %KDOT:~0,1%\r\ndoskey foo=bar\r\n"

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"debatch"}, args...))
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	coder, ok := err.(cli.ExitCoder)
	require.True(t, ok, "%v", err)
	return coder.ExitCode()
}

func TestDeobfuscateCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.bat", script)
	out := filepath.Join(dir, "out.bat")

	stdout, _, err := runApp(t, "-o", out, in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Done in")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "echo x a\r\n", string(data))
}

func TestStdoutFlag(t *testing.T) {
	in := writeFile(t, t.TempDir(), "in.bat", script)
	stdout, stderr, err := runApp(t, "--stdout", in)
	require.NoError(t, err)
	assert.Equal(t, "echo x a\r\n", stdout)
	assert.Contains(t, stderr, "Done in")
}

func TestConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.bat", script)
	cfg := writeFile(t, dir, "debatch.yaml", "stages: resolve\n")
	t.Setenv("DEBATCH_CONFIG", cfg)

	stdout, _, err := runApp(t, "-q", "--stdout", in)
	require.NoError(t, err)
	assert.Equal(t, "set KDOT=abc\r\nset a=x\r\necho x a\r\ndoskey foo=bar\r\n", stdout)

	// Flags win over the file.
	stdout, _, err = runApp(t, "-q", "--stdout", "--stages", "resolve,junk", in)
	require.NoError(t, err)
	assert.Equal(t, "echo x a\r\n", stdout)
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.bat", script)

	_, _, err := runApp(t, "--caret", "exp", in)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, err.Error(), "invalid caret mode")
	assert.Contains(t, err.Error(), "Hint:")

	_, _, err = runApp(t, filepath.Join(dir, "missing.bat"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file not found")

	_, _, err = runApp(t, "-o", in, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same file")

	bad := writeFile(t, dir, "bad.yaml", "caret: [\n")
	_, _, err = runApp(t, "--config", bad, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")

	invalid := writeFile(t, dir, "invalid.yaml", "caret: exp\n")
	_, _, err = runApp(t, "--config", invalid, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")

	stdout, _, err := runApp(t)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, stdout, "debatch [global options] INPUT")
}

func TestAnalyzeCommand(t *testing.T) {
	in := writeFile(t, t.TempDir(), "in.bat", script)
	stdout, _, err := runApp(t, "analyze", in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== Script Analysis ===")
	assert.Contains(t, stdout, "KDOT defined")
}

func TestRulesCommand(t *testing.T) {
	stdout, _, err := runApp(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dead-doskey-alias")
	assert.Contains(t, stdout, "anti-vm")
	assert.Contains(t, stdout, "...")

	stdout, _, err = runApp(t, "-v", "rules")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "...")
}

func TestConfigCommand(t *testing.T) {
	stdout, _, err := runApp(t, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "caret: unsupported")
	assert.Contains(t, stdout, "host_env: true")

	cfg := writeFile(t, t.TempDir(), "c.yaml", "caret: xor\nhost_env: false\n")
	stdout, _, err = runApp(t, "--config", cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "caret: xor")
	assert.Contains(t, stdout, "host_env: false")
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := runApp(t, "-V")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0.4.0")
}
