package e2e

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/ide"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/toolchain"
	"github.com/dusk-indust/jide/internal/toolchain/toolchaintest"
)

var update = flag.Bool("update", false, "update golden files")

// goldenDir returns the path to the testdata/golden directory.
func goldenDir() string {
	return filepath.Join("..", "..", "testdata", "golden")
}

// copyProject copies testdata/fixtures/java_project into a temp dir and
// loads its settings.
func copyProject(t *testing.T) config.Settings {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.CopyFS(root, os.DirFS(filepath.Join("..", "..", "testdata", "fixtures", "java_project"))))
	s, err := config.Load(root)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return s.Resolve(root)
}

func fakeAssets(t *testing.T) fstest.MapFS {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(layout.AndroidJar)
	require.NoError(t, err)
	_, err = w.Write([]byte("PK"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return fstest.MapFS{
		layout.AndroidJarZip:  {Data: buf.Bytes()},
		layout.LambdaStubsJar: {Data: []byte("PK")},
	}
}

func TestFixtureProject(t *testing.T) {
	s := copyProject(t)
	assert.Equal(t, config.Java8, s.LanguageLevel)

	runner := toolchaintest.JDK()
	core := ide.New(ide.Options{Assets: fakeAssets(t), Runner: runner, Workers: 2})
	defer func() { require.NoError(t, core.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listing, err := core.AwaitClasses(ctx, s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"com.example.App", "com.example.Shape"}, listing.Classes)
	assert.FileExists(t, filepath.Join(s.ClasspathDir, layout.LambdaStubsJar))

	javac := runner.CallsTo(toolchain.Javac)
	require.Len(t, javac, 1)
	assert.Contains(t, javac[0].Argv, "1.8")

	res := core.Extract(ctx, extract.Request{Kind: extract.KindSmali, Class: "com.example.App", Settings: s})
	require.True(t, res.Succeeded(), res.Diagnostic)

	goldenPath := filepath.Join(goldenDir(), "App.smali")
	if *update {
		require.NoError(t, os.WriteFile(goldenPath, []byte(res.Text), 0o644))
		return
	}
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "golden file missing, run with -update")
	assert.Equal(t, string(golden), res.Text)

	res = core.Extract(ctx, extract.Request{Kind: extract.KindDecompile, Class: "com.example.Shape", Settings: s})
	require.True(t, res.Succeeded(), res.Diagnostic)
	assert.Contains(t, res.Text, "package com.example;")

	entries, err := os.ReadDir(filepath.Join(s.BuildDir, layout.CFRDir))
	if err == nil {
		assert.Empty(t, entries, "per-request output dirs are removed unless keepOutputs is set")
	}
}
