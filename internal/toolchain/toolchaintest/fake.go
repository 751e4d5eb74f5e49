// Package toolchaintest provides a scripted toolchain.Runner for tests that
// must not depend on a JDK being installed.
package toolchaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dusk-indust/jide/internal/toolchain"
)

// Handler emulates one tool. It may write files named by the invocation's
// arguments and returns the process output.
type Handler func(ctx context.Context, inv toolchain.Invocation) (*toolchain.Output, error)

// Runner dispatches invocations to per-tool handlers and records every call.
type Runner struct {
	mu       sync.Mutex
	handlers map[toolchain.Tool]Handler
	calls    []toolchain.Invocation
}

var _ toolchain.Runner = (*Runner)(nil)

// New returns a Runner with no handlers; unhandled tools fail to start.
func New() *Runner {
	return &Runner{handlers: make(map[toolchain.Tool]Handler)}
}

// Handle registers h for tool and returns the runner for chaining.
func (r *Runner) Handle(tool toolchain.Tool, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tool] = h
	return r
}

func (r *Runner) Run(ctx context.Context, inv toolchain.Invocation) (*toolchain.Output, error) {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	h := r.handlers[inv.Tool]
	r.mu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("toolchaintest: no handler for %s", inv.Tool)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h(ctx, inv)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []toolchain.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolchain.Invocation(nil), r.calls...)
}

// CallsTo returns the recorded invocations of tool.
func (r *Runner) CallsTo(tool toolchain.Tool) []toolchain.Invocation {
	var out []toolchain.Invocation
	for _, c := range r.Calls() {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

// Succeed is a Handler that exits 0 with no output.
func Succeed(context.Context, toolchain.Invocation) (*toolchain.Output, error) {
	return &toolchain.Output{}, nil
}

// Exit returns a Handler that exits with code and writes stderr.
func Exit(code int, stderr string) Handler {
	return func(context.Context, toolchain.Invocation) (*toolchain.Output, error) {
		return &toolchain.Output{ExitCode: code, Stderr: []byte(stderr)}, nil
	}
}

// Flag returns the value following name in argv, or "".
func Flag(argv []string, name string) string {
	for i := 0; i+1 < len(argv); i++ {
		if argv[i] == name {
			return argv[i+1]
		}
	}
	return ""
}
