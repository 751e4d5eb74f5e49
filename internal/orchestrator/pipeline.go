package orchestrator

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// ErrBuildInProgress is returned by Build while another build is running.
// Current returns the running build's handle.
var ErrBuildInProgress = errors.New("orchestrator: a build is already in progress")

// Orchestrator runs builds: classpath, then compile, then dex. At most one
// build runs at a time.
type Orchestrator struct {
	runner   toolchain.Runner
	router   *Router
	logger   *zap.Logger
	inflight atomic.Pointer[Handle]
}

// New creates an Orchestrator and registers the three stage executors.
func New(provisioner Provisioner, scanner SourceScanner, runner toolchain.Runner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("build")

	router := NewRouter()
	router.RegisterExecutor(StageClasspath, &classpathStage{provisioner: provisioner, logger: logger})
	router.RegisterExecutor(StageCompile, &compileStage{scanner: scanner, logger: logger})
	router.RegisterExecutor(StageDex, &dexStage{logger: logger})

	return &Orchestrator{
		runner: runner,
		router: router,
		logger: logger,
	}
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build starts a build of s in the background and returns its handle. The
// handle yields one StageEvent per started stage and then exactly one
// Result. Cancelling ctx or calling Handle.Cancel interrupts the build; an
// interrupted or failed build leaves the previously published artifacts in
// place.
func (o *Orchestrator) Build(ctx context.Context, s config.Settings) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:       uuid.NewString(),
		started:  time.Now(),
		cancel:   cancel,
		progress: NewProgressReporter(),
		done:     make(chan struct{}),
	}
	if !o.inflight.CompareAndSwap(nil, h) {
		cancel()
		return nil, ErrBuildInProgress
	}

	o.logger.Info("build started", zap.String("build", h.id), zap.String("level", string(s.LanguageLevel)))
	go o.run(ctx, h, s.WithDefaults())
	return h, nil
}

// Current returns the running build, or nil.
func (o *Orchestrator) Current() *Handle {
	return o.inflight.Load()
}

func (o *Orchestrator) run(ctx context.Context, h *Handle, s config.Settings) {
	defer h.cancel()
	logger := o.logger.With(zap.String("build", h.id))

	bc := &BuildContext{
		ID:       h.id,
		Settings: s,
		Layout:   layout.FromSettings(s),
		Tools:    toolchain.New(o.runner, s.Tools),
	}
	bc.StagingDir = filepath.Join(bc.Layout.StagingDir(), h.id)

	err := o.execute(ctx, bc, h.progress.Emit)
	h.progress.Close()

	if rmErr := os.RemoveAll(bc.StagingDir); rmErr != nil {
		logger.Warn("staging cleanup failed", zap.String("dir", bc.StagingDir), zap.Error(rmErr))
	}

	res := Result{
		ID:       h.id,
		Stages:   bc.Completed,
		Duration: time.Since(h.started),
	}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Diagnostic = diag.Diagnostic(err)
		logger.Warn("build failed",
			zap.String("kind", string(diag.KindOf(err))),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
	} else {
		res.Status = StatusSucceeded
		res.DexPath = bc.Layout.Dex()
		logger.Info("build succeeded",
			zap.String("dex", res.DexPath),
			zap.Int("classes", len(bc.Classes)),
			zap.Duration("duration", res.Duration),
		)
	}

	// Clear the slot before publishing so a caller woken by Done can start
	// the next build immediately.
	o.inflight.CompareAndSwap(h, nil)
	h.finish(res)
}

// execute runs the stages and converts a panic anywhere below into an
// internal error.
func (o *Orchestrator) execute(ctx context.Context, bc *BuildContext, emit func(StageEvent)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = diag.PanicError("build", r)
		}
	}()

	if err := bc.Settings.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(bc.StagingDir, 0o755); err != nil {
		return diag.New(diag.KindInternal, "build", err)
	}
	return o.router.RouteAll(ctx, bc, emit)
}

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

// Handle is one running or finished build.
type Handle struct {
	id       string
	started  time.Time
	cancel   context.CancelFunc
	progress *ProgressReporter
	done     chan struct{}
	result   Result
}

// ID returns the build id.
func (h *Handle) ID() string { return h.id }

// Started returns when the build was started.
func (h *Handle) Started() time.Time { return h.started }

// Events returns the stage events. The sequence is one-shot: only the first
// caller receives events, and it ends before the Result is published.
func (h *Handle) Events() iter.Seq[StageEvent] { return h.progress.Events() }

// Done is closed once the Result is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel interrupts the build. It is safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Result returns the terminal result if the build has finished.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the build finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) finish(res Result) {
	h.result = res
	close(h.done)
}
