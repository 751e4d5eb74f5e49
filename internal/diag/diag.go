// Package diag defines the error taxonomy shared by the build and inspection
// core. Every public operation converts failures into a *Error so hosts can
// render a single diagnostic string without caring where the failure started.
package diag

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfig          Kind = "config"
	KindProvisioning    Kind = "provisioning"
	KindBuildStage      Kind = "build-stage"
	KindArtifactMissing Kind = "artifact-missing"
	KindExternalTool    Kind = "external-tool"
	KindParse           Kind = "parse"
	KindCanceled        Kind = "canceled"
	KindInternal        Kind = "internal"
)

// Error is a classified failure. Op names the operation ("ensure",
// "compile", "decompile"); Stage is set for build failures; Output holds any
// captured tool output.
type Error struct {
	Kind   Kind
	Op     string
	Stage  string
	Err    error
	Output string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " [%s]", e.Stage)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config reports a missing or invalid setting.
func Config(op string, err error) *Error { return New(KindConfig, op, err) }

// Provisioning reports an asset unpack or copy failure.
func Provisioning(op string, err error) *Error { return New(KindProvisioning, op, err) }

// Stage reports a compiler or dexer failure at a named build stage.
func Stage(stage string, err error, output string) *Error {
	return &Error{Kind: KindBuildStage, Op: "build", Stage: stage, Err: err, Output: output}
}

// ArtifactMissing reports an operation attempted before its input exists.
func ArtifactMissing(op string, err error) *Error { return New(KindArtifactMissing, op, err) }

// Tool reports a non-zero exit or malformed output from an external tool.
func Tool(op string, err error, output string) *Error {
	return &Error{Kind: KindExternalTool, Op: op, Err: err, Output: output}
}

// Parse reports a malformed DEX or class file.
func Parse(op string, err error) *Error { return New(KindParse, op, err) }

// Canceled reports an interrupted operation.
func Canceled(op string, err error) *Error { return New(KindCanceled, op, err) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Diagnostic renders err as the text a host shows (and lets the user copy).
// It is never empty for a non-nil error.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(err.Error())

	var e *Error
	seen := map[string]bool{}
	for cur := err; cur != nil; {
		if !errors.As(cur, &e) {
			break
		}
		if out := strings.TrimSpace(e.Output); out != "" && !seen[out] {
			seen[out] = true
			b.WriteString("\n\n")
			b.WriteString(out)
		}
		cur = e.Err
	}
	return b.String()
}

// PanicError converts a recovered panic value into an internal error whose
// output carries the goroutine stack.
func PanicError(op string, v any) *Error {
	return &Error{
		Kind:   KindInternal,
		Op:     op,
		Err:    fmt.Errorf("panic: %v", v),
		Output: string(debug.Stack()),
	}
}
