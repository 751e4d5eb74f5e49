package orchestrator

import (
	"time"
)

// Stage identifies a build stage. Stages always run in declaration order.
type Stage int

const (
	StageClasspath Stage = iota // classpath and lambda-stub resolution
	StageCompile                // java sources -> class files
	StageDex                    // class files -> classes.dex
)

// Stages is the fixed stage order of every build.
var Stages = []Stage{StageClasspath, StageCompile, StageDex}

func (s Stage) String() string {
	names := [...]string{
		"classpath",
		"compile",
		"dex",
	}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Label is the human-readable text handed to OnStageChanged.
func (s Stage) Label() string {
	switch s {
	case StageClasspath:
		return "Resolving classpath"
	case StageCompile:
		return "Compiling sources"
	case StageDex:
		return "Converting classes to DEX"
	default:
		return "Working"
	}
}

// StageEvent marks the start of a stage.
type StageEvent struct {
	Stage   Stage
	Message string
	At      time.Time
}

// Status is the terminal outcome of a build.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the single terminal outcome of one build.
type Result struct {
	ID         string
	Status     Status
	Diagnostic string // non-empty when Status is StatusFailed
	Err        error
	DexPath    string // set on success
	Stages     []Stage
	Duration   time.Duration
}

// Succeeded reports whether the build produced a valid DEX artifact.
func (r Result) Succeeded() bool { return r.Status == StatusSucceeded }
