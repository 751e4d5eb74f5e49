package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/jide/internal/diag"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Java7, s.LanguageLevel)
	assert.Equal(t, "bin", s.BuildDir)
	assert.Equal(t, []string{"javac"}, s.Tools.Javac)
}

func TestLoad_YamlOverridesAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := "languageLevel: \"8.0\"\nbuildDir: out\ntools:\n  d8: [\"/opt/d8\", \"--release\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jide.yml"), []byte(yml), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Java8, s.LanguageLevel)
	assert.Equal(t, "out", s.BuildDir)
	assert.Equal(t, "classpath", s.ClasspathDir)
	assert.Equal(t, []string{"/opt/d8", "--release"}, s.Tools.D8)
	assert.Equal(t, []string{"javac"}, s.Tools.Javac)
}

func TestLoad_FallsBackToYamlExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jide.yaml"), []byte("languageLevel: \"8.0\"\n"), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Java8, s.LanguageLevel)
}

func TestLoad_InvalidLanguageLevelIsConfigError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jide.yml"), []byte("languageLevel: \"11\"\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindConfig))
}

func TestLoad_MalformedYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jide.yml"), []byte("languageLevel: [\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, diag.KindConfig, diag.KindOf(err))
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := Defaults()
	s.LanguageLevel = Java8
	s.CurrentFile = "java/Main.java"
	require.NoError(t, Save(dir, s))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Java8, got.LanguageLevel)
	assert.Equal(t, "java/Main.java", got.CurrentFile)
}

func TestSave_RejectsInvalid(t *testing.T) {
	s := Defaults()
	s.LanguageLevel = "6"
	require.Error(t, Save(t.TempDir(), s))
}

func TestResolve_MakesDirsAbsolute(t *testing.T) {
	s := Defaults().Resolve("/proj")
	assert.Equal(t, "/proj/java", s.JavaDir)
	assert.Equal(t, "/proj/bin", s.BuildDir)

	s.BuildDir = "/abs/bin"
	assert.Equal(t, "/abs/bin", s.Resolve("/other").BuildDir)
}

func TestLanguageLevel_Helpers(t *testing.T) {
	assert.Equal(t, "1.7", Java7.JavacRelease())
	assert.Equal(t, "1.8", Java8.JavacRelease())
	assert.False(t, Java7.NeedsLambdaStubs())
	assert.True(t, Java8.NeedsLambdaStubs())
}
