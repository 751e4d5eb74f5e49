package classpath

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
)

// countingFS counts Open calls per name.
type countingFS struct {
	fs.FS
	opens map[string]*atomic.Int32
}

func (c countingFS) Open(name string) (fs.File, error) {
	if n, ok := c.opens[name]; ok {
		n.Add(1)
	}
	return c.FS.Open(name)
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newBundle(t *testing.T) countingFS {
	t.Helper()
	return countingFS{
		FS: fstest.MapFS{
			"android.jar.zip":       {Data: zipBytes(t, map[string]string{"android.jar": "PK-android"})},
			"core-lambda-stubs.jar": {Data: []byte("PK-lambda")},
		},
		opens: map[string]*atomic.Int32{
			"android.jar.zip":       new(atomic.Int32),
			"core-lambda-stubs.jar": new(atomic.Int32),
		},
	}
}

func TestEnsure_Java7UnpacksAndroidJarOnly(t *testing.T) {
	dir := t.TempDir()
	p := New(newBundle(t), nil)

	rep, err := p.Ensure(context.Background(), dir, config.Java7)
	require.NoError(t, err)
	assert.Equal(t, []string{"android.jar"}, rep.Installed)
	assert.Equal(t, []string{"core-lambda-stubs.jar"}, rep.Skipped)

	data, err := os.ReadFile(filepath.Join(dir, "android.jar"))
	require.NoError(t, err)
	assert.Equal(t, "PK-android", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "core-lambda-stubs.jar"))
}

func TestEnsure_IdempotentUnpack(t *testing.T) {
	dir := t.TempDir()
	bundle := newBundle(t)
	p := New(bundle, nil)

	_, err := p.Ensure(context.Background(), dir, config.Java7)
	require.NoError(t, err)
	rep, err := p.Ensure(context.Background(), dir, config.Java7)
	require.NoError(t, err)

	assert.Empty(t, rep.Installed)
	assert.Equal(t, []string{"android.jar"}, rep.Present)
	assert.Equal(t, int32(1), bundle.opens["android.jar.zip"].Load())
}

func TestEnsure_Java8CopiesLambdaStubs(t *testing.T) {
	dir := t.TempDir()
	p := New(newBundle(t), nil)

	rep, err := p.Ensure(context.Background(), dir, config.Java8)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"android.jar", "core-lambda-stubs.jar"}, rep.Installed)

	data, err := os.ReadFile(filepath.Join(dir, "core-lambda-stubs.jar"))
	require.NoError(t, err)
	assert.Equal(t, "PK-lambda", string(data))
}

func TestEnsure_ChecksAreIndependent(t *testing.T) {
	dir := t.TempDir()
	bundle := fstest.MapFS{
		// android.jar.zip missing from the bundle
		"core-lambda-stubs.jar": {Data: []byte("PK-lambda")},
	}
	p := New(bundle, nil)

	rep, err := p.Ensure(context.Background(), dir, config.Java8)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindProvisioning))
	assert.Equal(t, []string{"core-lambda-stubs.jar"}, rep.Installed)

	// Partial state is recoverable once the asset appears.
	bundle["android.jar.zip"] = &fstest.MapFile{Data: zipBytes(t, map[string]string{"android.jar": "x"})}
	rep, err = p.Ensure(context.Background(), dir, config.Java8)
	require.NoError(t, err)
	assert.Equal(t, []string{"android.jar"}, rep.Installed)
	assert.Equal(t, []string{"core-lambda-stubs.jar"}, rep.Present)
}

func TestEnsure_RejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	bundle := fstest.MapFS{
		"android.jar.zip": {Data: zipBytes(t, map[string]string{"../evil.jar": "x"})},
	}
	_, err := New(bundle, nil).Ensure(context.Background(), dir, config.Java7)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "evil.jar"))
}

func TestEnsure_CorruptZip(t *testing.T) {
	bundle := fstest.MapFS{"android.jar.zip": {Data: []byte("not a zip")}}
	_, err := New(bundle, nil).Ensure(context.Background(), t.TempDir(), config.Java7)
	require.Error(t, err)
	assert.Contains(t, diag.Diagnostic(err), "android.jar.zip")
}

func TestEnsure_ZipWithoutJarFails(t *testing.T) {
	dir := t.TempDir()
	bundle := newBundle(t)
	bundle.FS.(fstest.MapFS)["android.jar.zip"] = &fstest.MapFile{Data: zipBytes(t, map[string]string{"other.txt": "x"})}
	p := New(bundle, nil)

	rep, err := p.Ensure(context.Background(), dir, config.Java7)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindProvisioning))
	assert.Contains(t, err.Error(), "did not yield android.jar")
	assert.Empty(t, rep.Installed)
	assert.NoFileExists(t, filepath.Join(dir, "android.jar"))
}

func TestEnsure_NilBundle(t *testing.T) {
	dir := t.TempDir()
	p := New(nil, nil)

	_, err := p.Ensure(context.Background(), dir, config.Java7)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindProvisioning))
	assert.ErrorIs(t, err, ErrNoBundle)

	// Nothing to install means no bundle is needed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "android.jar"), []byte("PK"), 0o644))
	rep, err := p.Ensure(context.Background(), dir, config.Java7)
	require.NoError(t, err)
	assert.Equal(t, []string{"android.jar"}, rep.Present)
}

func TestEnsure_InvalidLevel(t *testing.T) {
	_, err := New(newBundle(t), nil).Ensure(context.Background(), t.TempDir(), "9")
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindConfig))
}

func TestEnsure_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newBundle(t), nil).Ensure(ctx, t.TempDir(), config.Java7)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindCanceled))
}

func TestClasspath(t *testing.T) {
	assert.Equal(t, []string{"/cp/android.jar"}, Classpath("/cp", config.Java7))
	assert.Equal(t, []string{"/cp/android.jar", "/cp/core-lambda-stubs.jar"}, Classpath("/cp", config.Java8))
}
