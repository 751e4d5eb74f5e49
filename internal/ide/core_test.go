package ide

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/dex"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/jobs"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/orchestrator"
	"github.com/dusk-indust/jide/internal/source"
	"github.com/dusk-indust/jide/internal/toolchain"
	"github.com/dusk-indust/jide/internal/toolchain/toolchaintest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func assets(t *testing.T) fstest.MapFS {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(layout.AndroidJar)
	require.NoError(t, err)
	_, err = w.Write([]byte("PK-android"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return fstest.MapFS{
		layout.AndroidJarZip:  {Data: buf.Bytes()},
		layout.LambdaStubsJar: {Data: []byte("PK-lambda")},
	}
}

type fixture struct {
	core     *Core
	runner   *toolchaintest.Runner
	settings config.Settings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	runner := toolchaintest.JDK()
	core := New(Options{Assets: assets(t), Runner: runner, Workers: 2})
	t.Cleanup(func() { require.NoError(t, core.Close()) })

	s := config.Defaults().Resolve(t.TempDir())
	_, err := source.EnsureMain(s.JavaDir)
	require.NoError(t, err)
	return &fixture{core: core, runner: runner, settings: s}
}

func (f *fixture) write(t *testing.T, rel, body string) {
	t.Helper()
	path := filepath.Join(f.settings.JavaDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func (f *fixture) build(t *testing.T) orchestrator.Result {
	t.Helper()
	h, err := f.core.Build(context.Background(), f.settings)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestCore_BuildListExtract(t *testing.T) {
	f := newFixture(t)
	f.write(t, "com/example/Util.java", "package com.example;\n\npublic class Util {}\n")

	res := f.build(t)
	require.True(t, res.Succeeded(), res.Diagnostic)

	listing, err := f.core.ListClasses(context.Background(), f.settings)
	require.NoError(t, err)
	assert.Equal(t, dex.Ready, listing.State)
	assert.ElementsMatch(t, []string{"Main", "com.example.Util"}, listing.Classes)

	for _, kind := range extract.Kinds {
		out := f.core.Extract(context.Background(), extract.Request{Kind: kind, Class: "com.example.Util", Settings: f.settings})
		require.True(t, out.Succeeded(), "%s: %s", kind, out.Diagnostic)
		assert.Contains(t, out.Text, "Util", kind)
	}

	smali := f.core.Extract(context.Background(), extract.Request{Kind: extract.KindSmali, Class: "Main", Settings: f.settings})
	require.True(t, smali.Succeeded(), smali.Diagnostic)
	assert.Equal(t, extract.FormatSmali(toolchaintest.Smali("Main")), smali.Text)
}

func TestCore_ListClassesTriggersOneBuild(t *testing.T) {
	f := newFixture(t)

	listing, err := f.core.ListClasses(context.Background(), f.settings)
	require.NoError(t, err)
	assert.Equal(t, dex.NotBuilt, listing.State)
	assert.Empty(t, listing.Classes)
	require.NotNil(t, listing.Build)

	// A second call while the build runs joins it instead of starting another.
	again, err := f.core.ListClasses(context.Background(), f.settings)
	require.NoError(t, err)
	if again.State == dex.NotBuilt {
		require.NotNil(t, again.Build)
	}

	<-listing.Build.Done()
	if again.Build != nil {
		<-again.Build.Done()
	}
	assert.Len(t, f.runner.CallsTo(toolchain.D8), 1)

	listing, err = f.core.ListClasses(context.Background(), f.settings)
	require.NoError(t, err)
	assert.Equal(t, dex.Ready, listing.State)
	assert.Equal(t, []string{"Main"}, listing.Classes)
}

func TestCore_AwaitClasses(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listing, err := f.core.AwaitClasses(ctx, f.settings)
	require.NoError(t, err)
	assert.Equal(t, dex.Ready, listing.State)
	assert.Equal(t, []string{"Main"}, listing.Classes)

	page, err := f.core.Jobs(jobs.Filter{Kind: JobKindBuild})
	require.NoError(t, err)
	require.Len(t, page.Jobs, 1)
	job, err := f.core.WaitJob(ctx, page.Jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, job.State)
}

func TestCore_AwaitClassesFailedBuild(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Main.java", "public class Main { void f() { int x = ; } }")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listing, err := f.core.AwaitClasses(ctx, f.settings)
	assert.True(t, diag.Is(err, diag.KindArtifactMissing), "%v", err)
	assert.Equal(t, dex.NotBuilt, listing.State)
}

func TestCore_StartBuildTracksStages(t *testing.T) {
	f := newFixture(t)
	job, err := f.core.StartBuild(f.settings)
	require.NoError(t, err)
	assert.Equal(t, JobKindBuild, job.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done, err := f.core.WaitJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, done.State, done.Diagnostic)
	assert.Equal(t, orchestrator.StageDex.Label(), done.Stage)
	assert.Equal(t, layout.FromSettings(f.settings).Dex(), done.Text)
}

func TestCore_StartBuildJobsAreDistinct(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seen := map[string]bool{}
	for range 5 {
		job, err := f.core.StartBuild(f.settings)
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "job id reused: %s", job.ID)
		seen[job.ID] = true

		done, err := f.core.WaitJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, done.ID)
		assert.Equal(t, jobs.StateSucceeded, done.State, done.Diagnostic)
	}
}

func TestCore_StartBuildFailureRecordsDiagnostic(t *testing.T) {
	f := newFixture(t)
	f.runner.Handle(toolchain.Javac, toolchaintest.Exit(1, "Main.java:1: error: ';' expected"))

	job, err := f.core.StartBuild(f.settings)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done, err := f.core.WaitJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, done.State)
	assert.Contains(t, done.Diagnostic, "';' expected")
}

func TestCore_SubmitExtract(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.build(t).Succeeded())

	job, err := f.core.SubmitExtract(extract.Request{Kind: extract.KindDecompile, Class: "Main", Settings: f.settings})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done, err := f.core.WaitJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, done.State, done.Diagnostic)
	assert.Contains(t, done.Text, "public class Main")

	got, err := f.core.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, done, got)
}

func TestCore_JobNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.core.Job("nope")
	assert.True(t, diag.Is(err, diag.KindArtifactMissing))
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestCore_Provision(t *testing.T) {
	f := newFixture(t)
	s := f.settings
	s.LanguageLevel = config.Java8

	rep, err := f.core.Provision(context.Background(), s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{layout.AndroidJar, layout.LambdaStubsJar}, rep.Installed)

	rep, err = f.core.Provision(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, rep.Installed)
}

func TestCore_ProvisionWithoutAssets(t *testing.T) {
	core := New(Options{Runner: toolchaintest.JDK()})
	defer func() { require.NoError(t, core.Close()) }()
	s := config.Defaults().Resolve(t.TempDir())

	_, err := core.Provision(context.Background(), s)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindProvisioning))

	_, err = source.EnsureMain(s.JavaDir)
	require.NoError(t, err)
	h, err := core.Build(context.Background(), s)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Diagnostic, "no asset bundle configured")
}

func TestCore_CloseCancelsRunningBuild(t *testing.T) {
	started := make(chan struct{})
	runner := toolchaintest.JDK()
	runner.Handle(toolchain.Javac, func(ctx context.Context, _ toolchain.Invocation) (*toolchain.Output, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	core := New(Options{Assets: assets(t), Runner: runner})
	s := config.Defaults().Resolve(t.TempDir())
	_, err := source.EnsureMain(s.JavaDir)
	require.NoError(t, err)

	job, err := core.StartBuild(s)
	require.NoError(t, err)
	<-started
	require.NoError(t, core.Close())

	got, err := core.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, got.State)
	assert.Nil(t, core.CurrentBuild())
}
