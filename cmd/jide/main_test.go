package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/toolchain"
	"github.com/dusk-indust/jide/internal/toolchain/toolchaintest"
)

type cli struct {
	root   string
	runner *toolchaintest.Runner
	assets fstest.MapFS
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(layout.AndroidJar)
	require.NoError(t, err)
	_, err = w.Write([]byte("PK"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return &cli{
		root:   t.TempDir(),
		runner: toolchaintest.JDK(),
		assets: fstest.MapFS{
			layout.AndroidJarZip:  {Data: buf.Bytes()},
			layout.LambdaStubsJar: {Data: []byte("PK")},
		},
	}
}

// exec runs one command line against the project and returns stdout and
// stderr.
func (c *cli) exec(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		runner:  c.runner,
		assets:  c.assets,
		console: zapcore.AddSync(io.Discard),
		stdout:  &stdout,
		stderr:  &stderr,
	}
	err := run(context.Background(), append([]string{"-C", c.root}, args...), a)
	return stdout.String(), stderr.String(), err
}

func (c *cli) mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := c.exec(t, args...)
	require.NoError(t, err, errOut)
	return out
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	assert.Equal(t, "dev\n", c.mustExec(t, "version"))
	assert.Equal(t, "dev\n", c.mustExec(t, "--version"))
}

func TestInit(t *testing.T) {
	c := newCLI(t)
	out := c.mustExec(t, "init", "--level", "8.0")

	assert.Contains(t, out, "created ./jide.yml")
	assert.Contains(t, out, "created ./java/Main.java")
	assert.Contains(t, out, "created .mcp.json")
	assert.FileExists(t, filepath.Join(c.root, "java", "Main.java"))

	s, err := config.Load(c.root)
	require.NoError(t, err)
	assert.Equal(t, config.Java8, s.LanguageLevel)
	assert.Equal(t, "java", s.JavaDir)

	data, err := os.ReadFile(filepath.Join(c.root, ".mcp.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"serve-mcp"`)

	out = c.mustExec(t, "init")
	assert.Contains(t, out, "skipped ./jide.yml")
	assert.Contains(t, out, "skipped .mcp.json jide entry")
}

func TestBuildClassesAndExtract(t *testing.T) {
	c := newCLI(t)
	c.mustExec(t, "init")

	out := c.mustExec(t, "build")
	assert.Contains(t, out, "[1/3] Resolving classpath...")
	assert.Contains(t, out, "[3/3] Converting classes to DEX...")
	assert.Contains(t, out, "✓ build succeeded")

	assert.Equal(t, "Main\n", c.mustExec(t, "classes"))
	assert.Contains(t, c.mustExec(t, "disassemble", "Main"), "public class Main")
	assert.Contains(t, c.mustExec(t, "decompile", "Main"), "public class Main {")
	assert.Equal(t, extract.FormatSmali(toolchaintest.Smali("Main")), c.mustExec(t, "smali", "Main"))
}

func TestClassesBuildsFirst(t *testing.T) {
	c := newCLI(t)
	c.mustExec(t, "init")

	assert.Equal(t, "Main\n", c.mustExec(t, "classes"))
	assert.Len(t, c.runner.CallsTo(toolchain.D8), 1)
}

func TestBuildFailurePrintsDiagnostic(t *testing.T) {
	c := newCLI(t)
	c.mustExec(t, "init")
	c.runner.Handle(toolchain.Javac, toolchaintest.Exit(1, "Main.java:3: error: cannot find symbol"))

	out, errOut, err := c.exec(t, "build")
	assert.ErrorIs(t, err, errBuildFailed)
	assert.Contains(t, out, "✗ build failed")
	assert.Contains(t, errOut, "cannot find symbol")
}

func TestExtractMissingClass(t *testing.T) {
	c := newCLI(t)
	c.mustExec(t, "init")
	c.mustExec(t, "build")

	out, errOut, err := c.exec(t, "decompile", "com.example.Nope")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "artifact-missing")
}

func TestProvision(t *testing.T) {
	c := newCLI(t)
	out := c.mustExec(t, "provision")
	assert.Contains(t, out, "installed android.jar")
	assert.Contains(t, out, "skipped   core-lambda-stubs.jar (not needed at 7.0)")

	out = c.mustExec(t, "provision", "--level", "8.0")
	assert.Contains(t, out, "present   android.jar")
	assert.Contains(t, out, "installed core-lambda-stubs.jar")
}

func TestConfigSetGet(t *testing.T) {
	c := newCLI(t)
	c.mustExec(t, "config", "set", "languageLevel", "8.0")
	assert.Equal(t, "8.0\n", c.mustExec(t, "config", "get", "languageLevel"))

	c.mustExec(t, "config", "set", "keepOutputs", "true")
	assert.Equal(t, "true\n", c.mustExec(t, "config", "get", "keepOutputs"))
	assert.Contains(t, c.mustExec(t, "config", "get"), "languageLevel: \"8.0\"")

	_, _, err := c.exec(t, "config", "set", "languageLevel", "11")
	assert.True(t, diag.Is(err, diag.KindConfig))
	_, _, err = c.exec(t, "config", "set", "color", "blue")
	assert.ErrorContains(t, err, "unknown key")
}

func TestEnvironmentOverlay(t *testing.T) {
	c := newCLI(t)
	t.Setenv("JIDE_LANGUAGE_LEVEL", "8.0")
	assert.Equal(t, "8.0\n", c.mustExec(t, "config", "get", "languageLevel"))

	// Flags win over the environment.
	assert.Equal(t, "7.0\n", c.mustExec(t, "--level", "7.0", "config", "get", "languageLevel"))

	t.Setenv("JIDE_LANGUAGE_LEVEL", "9")
	_, _, err := c.exec(t, "version")
	assert.True(t, diag.Is(err, diag.KindConfig))
}

func TestLoadSettingsReappliesOverlay(t *testing.T) {
	c := newCLI(t)
	c.mustExec(t, "init")

	a := &app{runner: c.runner, assets: c.assets, console: zapcore.AddSync(io.Discard), stdout: io.Discard, stderr: io.Discard}
	require.NoError(t, run(context.Background(), []string{"-C", c.root, "--level", "8.0", "version"}, a))

	// Later edits to jide.yml and the environment are seen on the next load,
	// while the flag still wins for the level.
	s, err := config.Load(c.root)
	require.NoError(t, err)
	s.CurrentFile = "java/Main.java"
	require.NoError(t, config.Save(c.root, s))
	t.Setenv("JIDE_JAVAC", "javac-17")

	got, err := a.loadSettings()
	require.NoError(t, err)
	assert.Equal(t, config.Java8, got.LanguageLevel)
	assert.Equal(t, []string{"javac-17"}, got.Tools.Javac)
	assert.Equal(t, filepath.Join(c.root, "java", "Main.java"), got.CurrentFile)
}
