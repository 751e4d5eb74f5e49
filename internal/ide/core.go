// Package ide is the narrow interface hosts talk to. It wires the classpath
// provisioner, the build orchestrator, the DEX enumerator and the artifact
// extractors behind one Core that takes explicit settings on every call.
package ide

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/classpath"
	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/dex"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/jobs"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/orchestrator"
	"github.com/dusk-indust/jide/internal/source"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// JobKindBuild is the job kind recorded for tracked builds.
const JobKindBuild = "build"

// Options configures a Core.
type Options struct {
	// Assets is the read-only bundle holding android.jar.zip and
	// core-lambda-stubs.jar.
	Assets fs.FS
	// Runner executes external tools. Defaults to an ExecRunner.
	Runner toolchain.Runner
	Logger *zap.Logger
	// Workers bounds concurrent background extractions.
	Workers int
	// JobCapacity bounds the retained job history.
	JobCapacity int
}

// Core is safe for concurrent use. Close releases its workers.
type Core struct {
	provisioner *classpath.Provisioner
	builds      *orchestrator.Orchestrator
	extract     *extract.Service
	jobs        *jobs.Store
	logger      *zap.Logger

	base     context.Context
	stop     context.CancelFunc
	watchers sync.WaitGroup
}

// New builds a Core from opts.
func New(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = &toolchain.ExecRunner{Logger: logger.Named("toolchain")}
	}
	store := jobs.NewStore(opts.JobCapacity)
	provisioner := classpath.New(opts.Assets, logger)
	base, stop := context.WithCancel(context.Background())

	return &Core{
		provisioner: provisioner,
		builds:      orchestrator.New(provisioner, source.NewScanner(), runner, logger),
		extract:     extract.NewService(runner, store, logger, opts.Workers),
		jobs:        store,
		logger:      logger,
		base:        base,
		stop:        stop,
	}
}

// Provision installs the classpath jars required at the settings' level.
func (c *Core) Provision(ctx context.Context, s config.Settings) (classpath.Report, error) {
	s = s.WithDefaults()
	return c.provisioner.Ensure(ctx, s.ClasspathDir, s.LanguageLevel)
}

// Build starts a build and hands its events to the caller. It returns
// orchestrator.ErrBuildInProgress while another build runs.
func (c *Core) Build(ctx context.Context, s config.Settings) (*orchestrator.Handle, error) {
	return c.builds.Build(ctx, s)
}

// StartBuild starts a build detached from any request context and records it
// as a job whose stage follows the build's progress.
func (c *Core) StartBuild(s config.Settings) (jobs.Job, error) {
	h, err := c.builds.Build(c.base, s)
	if err != nil {
		return jobs.Job{}, err
	}
	return c.track(h, s), nil
}

// track drains h into a new build job.
func (c *Core) track(h *orchestrator.Handle, s config.Settings) jobs.Job {
	created := c.jobs.Create(JobKindBuild, layout.FromSettings(s.WithDefaults()).Dex())
	id := created.ID
	_ = c.jobs.Start(id)

	c.watchers.Add(1)
	go func() {
		defer c.watchers.Done()
		res := orchestrator.Drive(h, orchestrator.ListenerFuncs{
			StageChanged: func(stage string) { _ = c.jobs.SetStage(id, stage) },
		})
		if res.Succeeded() {
			_ = c.jobs.Succeed(id, res.DexPath)
			return
		}
		_ = c.jobs.Fail(id, res.Diagnostic)
	}()

	snap, err := c.jobs.Get(id)
	if err != nil {
		return created
	}
	return snap
}

// CurrentBuild returns the running build, or nil.
func (c *Core) CurrentBuild() *orchestrator.Handle { return c.builds.Current() }

// ListClasses enumerates the DEX of the last successful build. A missing DEX
// starts one tracked build and yields NotBuilt without blocking; the caller
// retries once Listing.Build is done.
func (c *Core) ListClasses(ctx context.Context, s config.Settings) (dex.Listing, error) {
	return c.enumerator(s).List(ctx, layout.FromSettings(s.WithDefaults()).Dex())
}

// AwaitClasses is ListClasses followed by waiting for the triggered build and
// listing again.
func (c *Core) AwaitClasses(ctx context.Context, s config.Settings) (dex.Listing, error) {
	return c.enumerator(s).Await(ctx, layout.FromSettings(s.WithDefaults()).Dex())
}

func (c *Core) enumerator(s config.Settings) *dex.Enumerator {
	return dex.NewEnumerator(dex.BuilderFunc(func(context.Context) (dex.Build, error) {
		h, err := c.builds.Build(c.base, s)
		if errors.Is(err, orchestrator.ErrBuildInProgress) {
			if cur := c.builds.Current(); cur != nil {
				return cur, nil
			}
			// The running build finished between the two calls.
			h, err = c.builds.Build(c.base, s)
		}
		if err != nil {
			return nil, err
		}
		c.track(h, s)
		return h, nil
	}), c.logger)
}

// Extract runs one extraction and waits for its text.
func (c *Core) Extract(ctx context.Context, req extract.Request) extract.Result {
	return c.extract.Run(ctx, req)
}

// SubmitExtract queues one extraction on the worker pool.
func (c *Core) SubmitExtract(req extract.Request) (jobs.Job, error) {
	return c.extract.Submit(req)
}

// Job returns a snapshot of a build or extraction job.
func (c *Core) Job(id string) (jobs.Job, error) {
	j, err := c.jobs.Get(id)
	if err != nil {
		return jobs.Job{}, diag.ArtifactMissing("get job", err)
	}
	return j, nil
}

// WaitJob blocks until the job is terminal.
func (c *Core) WaitJob(ctx context.Context, id string) (jobs.Job, error) {
	return c.jobs.Wait(ctx, id)
}

// Jobs lists recorded jobs.
func (c *Core) Jobs(filter jobs.Filter) (jobs.Page, error) {
	return c.jobs.List(filter)
}

// Close cancels background builds and extractions and waits for them.
func (c *Core) Close() error {
	c.stop()
	if h := c.builds.Current(); h != nil {
		h.Cancel()
		<-h.Done()
	}
	err := c.extract.Close()
	c.watchers.Wait()
	return err
}
