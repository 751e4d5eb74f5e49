package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/source"
)

// BuildContext is the state threaded through the stages of one build. Each
// stage reads what earlier stages recorded and adds its own outputs.
type BuildContext struct {
	ID       string
	Settings config.Settings
	Layout   layout.Layout
	Tools    Tools

	// StagingDir holds every output of this build until the dex stage
	// publishes them.
	StagingDir string

	Classpath   []string     // set by the classpath stage
	Sources     *source.Tree // set by the compile stage
	ClassFiles  []string     // set by the compile stage
	StagedDex   string       // set by the dex stage
	Classes     []string     // dex class table, set by the dex stage
	Completed   []Stage
	StageTiming map[Stage]time.Duration
}

// StageExecutor executes a single build stage.
type StageExecutor interface {
	Execute(ctx context.Context, bc *BuildContext) error
}

// StageExecutorFunc adapts a function to StageExecutor.
type StageExecutorFunc func(ctx context.Context, bc *BuildContext) error

func (f StageExecutorFunc) Execute(ctx context.Context, bc *BuildContext) error { return f(ctx, bc) }

// Router maps build stages to their registered executors and runs them in
// the fixed stage order.
type Router struct {
	executors map[Stage]StageExecutor
}

// NewRouter creates a Router with an empty executor registry.
func NewRouter() *Router {
	return &Router{executors: make(map[Stage]StageExecutor)}
}

// RegisterExecutor associates an executor with a build stage.
func (r *Router) RegisterExecutor(stage Stage, exec StageExecutor) {
	r.executors[stage] = exec
}

// Route runs the executor registered for stage.
func (r *Router) Route(ctx context.Context, stage Stage, bc *BuildContext) error {
	exec, ok := r.executors[stage]
	if !ok {
		return fmt.Errorf("router: no executor registered for stage %d (%s)", stage, stage)
	}
	return exec.Execute(ctx, bc)
}

// RouteAll runs every stage in order, calling emit before each one starts.
// It stops at the first failure and checks for cancellation between stages.
// Stage failures are returned unwrapped so their diagnostics stay intact.
func (r *Router) RouteAll(ctx context.Context, bc *BuildContext, emit func(StageEvent)) error {
	if bc.StageTiming == nil {
		bc.StageTiming = make(map[Stage]time.Duration, len(Stages))
	}
	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			return diag.Canceled("build", fmt.Errorf("before stage %s: %w", stage, err))
		}
		if emit != nil {
			emit(StageEvent{Stage: stage, At: time.Now()})
		}
		start := time.Now()
		if err := r.Route(ctx, stage, bc); err != nil {
			if ctx.Err() != nil && !diag.Is(err, diag.KindCanceled) {
				return diag.Canceled("build", fmt.Errorf("stage %s: %w", stage, err))
			}
			return err
		}
		bc.StageTiming[stage] = time.Since(start)
		bc.Completed = append(bc.Completed, stage)
	}
	return nil
}
