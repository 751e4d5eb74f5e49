package dex

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/diag"
)

// State discriminates a Listing.
type State int

const (
	// NotBuilt means the DEX file does not exist yet; a build was started
	// (or was already running) and the caller must retry after it completes.
	NotBuilt State = iota
	// Ready means Classes holds the enumerated class names.
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "not-built"
}

// Build is an in-flight build the caller can wait on.
type Build interface {
	Done() <-chan struct{}
}

// Builder starts a build without waiting for it to finish.
type Builder interface {
	StartBuild(ctx context.Context) (Build, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context) (Build, error)

func (f BuilderFunc) StartBuild(ctx context.Context) (Build, error) { return f(ctx) }

// Listing is the result of one enumeration.
type Listing struct {
	State   State
	Classes []string
	// Build is set when State is NotBuilt and a build was triggered.
	Build Build
}

// Enumerator lists the classes of a DEX artifact. Results are never cached:
// every call re-reads the file.
type Enumerator struct {
	builder Builder
	logger  *zap.Logger
}

// NewEnumerator returns an Enumerator that starts builds through builder.
func NewEnumerator(builder Builder, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{builder: builder, logger: logger.Named("dex")}
}

// List enumerates the classes of dexPath in class-table order. If the file
// is missing it starts one build and returns NotBuilt without blocking.
// Malformed files yield a parse error and no classes.
func (e *Enumerator) List(ctx context.Context, dexPath string) (Listing, error) {
	info, err := os.Stat(dexPath)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Info("dex missing, starting build", zap.String("path", dexPath))
		if e.builder == nil {
			return Listing{State: NotBuilt}, diag.ArtifactMissing("list classes", err)
		}
		b, berr := e.builder.StartBuild(ctx)
		if berr != nil {
			return Listing{State: NotBuilt}, diag.ArtifactMissing("list classes", berr)
		}
		return Listing{State: NotBuilt, Build: b}, nil
	}
	if err != nil {
		return Listing{}, diag.ArtifactMissing("list classes", err)
	}
	if info.IsDir() {
		return Listing{}, diag.Parse("list classes", errors.New(dexPath+" is a directory"))
	}

	f, err := Open(dexPath)
	if err != nil {
		return Listing{}, diag.Parse("list classes", err)
	}
	return Listing{State: Ready, Classes: f.Classes()}, nil
}

// Await lists classes, and when the DEX is missing waits for the triggered
// build and lists again. It is the host-side retry loop in one call.
func (e *Enumerator) Await(ctx context.Context, dexPath string) (Listing, error) {
	l, err := e.List(ctx, dexPath)
	if err != nil || l.State == Ready || l.Build == nil {
		return l, err
	}
	select {
	case <-l.Build.Done():
	case <-ctx.Done():
		return l, diag.Canceled("list classes", ctx.Err())
	}
	// A failed build leaves no DEX; report it instead of starting another.
	if _, err := os.Stat(dexPath); err != nil {
		return Listing{State: NotBuilt}, diag.ArtifactMissing("list classes", errors.New("build did not produce "+dexPath))
	}
	return e.List(ctx, dexPath)
}
