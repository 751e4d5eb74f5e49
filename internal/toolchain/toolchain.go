// Package toolchain invokes the external tools the core drives: the Java
// compiler, the dexer, the decompiler and the smali disassembler.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
)

// Tool names an external tool.
type Tool string

const (
	Javac    Tool = "javac"
	D8       Tool = "d8"
	CFR      Tool = "cfr"
	Baksmali Tool = "baksmali"
)

// Invocation is one tool run.
type Invocation struct {
	Tool Tool
	Argv []string
	Dir  string
}

func (inv Invocation) String() string { return strings.Join(inv.Argv, " ") }

// Output is the captured result of a finished process.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Combined returns stderr followed by stdout, trimmed.
func (o *Output) Combined() string {
	if o == nil {
		return ""
	}
	s := strings.TrimSpace(string(o.Stderr))
	if out := strings.TrimSpace(string(o.Stdout)); out != "" {
		if s != "" {
			s += "\n"
		}
		s += out
	}
	return s
}

// Runner runs a single invocation. A non-zero exit is reported through
// Output.ExitCode, not as an error; errors mean the process could not run or
// was canceled.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Output, error)
}

// ExecRunner runs invocations as child processes.
// Deadlines come from ctx; Toolchain applies the configured tools.timeout.
type ExecRunner struct {
	Logger *zap.Logger
}

var _ Runner = (*ExecRunner)(nil)

// Run starts the process and waits for it. Cancelling ctx kills the whole
// process group.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	if len(inv.Argv) == 0 {
		return nil, fmt.Errorf("toolchain: %s: empty command", inv.Tool)
	}
	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger().Debug("tool finished",
		zap.String("tool", string(inv.Tool)),
		zap.String("command", inv.String()),
		zap.Duration("duration", time.Since(start)),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("toolchain: %s interrupted: %w", inv.Tool, ctxErr)
	}

	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return nil, fmt.Errorf("toolchain: start %s: %w", inv.Tool, err)
	}
	return out, nil
}

func (r *ExecRunner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Toolchain binds the configured argv prefixes to a Runner.
type Toolchain struct {
	runner  Runner
	prefix  map[Tool][]string
	timeout time.Duration
}

// New builds a Toolchain from the tools section of the settings.
func New(runner Runner, cfg config.ToolsConfig) *Toolchain {
	return &Toolchain{
		runner:  runner,
		timeout: cfg.Timeout,
		prefix: map[Tool][]string{
			Javac:    cfg.Javac,
			D8:       cfg.D8,
			CFR:      cfg.CFR,
			Baksmali: cfg.Baksmali,
		},
	}
}

// Command builds the invocation for tool with args appended to its prefix.
func (t *Toolchain) Command(tool Tool, args ...string) Invocation {
	prefix := t.prefix[tool]
	argv := make([]string, 0, len(prefix)+len(args))
	argv = append(argv, prefix...)
	argv = append(argv, args...)
	return Invocation{Tool: tool, Argv: argv}
}

// Exec runs tool with args and classifies the outcome: cancellation becomes a
// canceled error, a non-zero exit an external-tool error carrying the
// captured output.
func (t *Toolchain) Exec(ctx context.Context, op string, tool Tool, args ...string) (*Output, error) {
	if len(t.prefix[tool]) == 0 {
		return nil, diag.Config(op, fmt.Errorf("no command configured for %s", tool))
	}
	inv := t.Command(tool, args...)
	parent := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	out, err := t.runner.Run(ctx, inv)
	if err != nil {
		if parent.Err() != nil {
			return nil, diag.Canceled(op, err)
		}
		if ctx.Err() != nil {
			return nil, diag.Tool(op, fmt.Errorf("%s timed out after %s: %w", tool, t.timeout, err), "")
		}
		return nil, diag.Tool(op, err, "")
	}
	if out.ExitCode != 0 {
		return out, diag.Tool(op, fmt.Errorf("%s exited with status %d", tool, out.ExitCode), out.Combined())
	}
	return out, nil
}
