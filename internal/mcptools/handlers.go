package mcptools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/dex"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/ide"
	"github.com/dusk-indust/jide/internal/jobs"
	"github.com/dusk-indust/jide/internal/orchestrator"
)

// SettingsLoader returns the effective, resolved settings for one tool call.
type SettingsLoader func() (config.Settings, error)

// IDEService handles MCP tool calls against one project. Settings are
// reloaded on every call so edits made by other hosts are picked up.
type IDEService struct {
	core *ide.Core
	root string
	load SettingsLoader
	mu   sync.Mutex // serializes settings writes
}

// NewIDEService creates an IDEService for the project rooted at projectRoot.
// load layers host overrides on top of jide.yml; nil reads the file alone.
func NewIDEService(core *ide.Core, projectRoot string, load SettingsLoader) *IDEService {
	if load == nil {
		load = FileSettings(projectRoot)
	}
	return &IDEService{core: core, root: projectRoot, load: load}
}

// FileSettings loads jide.yml from projectRoot and resolves it there.
func FileSettings(projectRoot string) SettingsLoader {
	return func() (config.Settings, error) {
		st, err := config.Load(projectRoot)
		if err != nil {
			return config.Settings{}, err
		}
		return st.Resolve(projectRoot), nil
	}
}

func (s *IDEService) settings() (config.Settings, error) {
	return s.load()
}

// Build runs a build to completion and reports every stage it entered.
func (s *IDEService) Build(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ BuildInput,
) (*mcp.CallToolResult, BuildOutput, error) {
	st, err := s.settings()
	if err != nil {
		return nil, BuildOutput{}, err
	}
	h, err := s.core.Build(ctx, st)
	if err != nil {
		return nil, BuildOutput{}, buildError(err)
	}

	out := BuildOutput{Stages: []string{}}
	res := orchestrator.Drive(h, orchestrator.ListenerFuncs{
		StageChanged: func(stage string) { out.Stages = append(out.Stages, stage) },
	})
	out.Status = string(res.Status)
	out.DexPath = res.DexPath
	out.Diagnostic = res.Diagnostic
	out.DurationMs = res.Duration.Milliseconds()
	return nil, out, nil
}

// StartBuild starts a build in the background and returns its job.
func (s *IDEService) StartBuild(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ StartBuildInput,
) (*mcp.CallToolResult, JobOutput, error) {
	st, err := s.settings()
	if err != nil {
		return nil, JobOutput{}, err
	}
	job, err := s.core.StartBuild(st)
	if err != nil {
		return nil, JobOutput{}, buildError(err)
	}
	return nil, JobOutput{Job: job}, nil
}

// GetJob reports a build or extraction job, optionally waiting for it.
func (s *IDEService) GetJob(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetJobInput,
) (*mcp.CallToolResult, JobOutput, error) {
	if input.ID == "" {
		return nil, JobOutput{}, fmt.Errorf("id is required")
	}
	var (
		job jobs.Job
		err error
	)
	if input.Wait {
		job, err = s.core.WaitJob(ctx, input.ID)
	} else {
		job, err = s.core.Job(input.ID)
	}
	if err != nil {
		return nil, JobOutput{}, err
	}
	return nil, JobOutput{Job: job}, nil
}

// ListClasses enumerates the DEX. Without a DEX it starts a build and, unless
// wait is set, reports not-built right away.
func (s *IDEService) ListClasses(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListClassesInput,
) (*mcp.CallToolResult, ListClassesOutput, error) {
	st, err := s.settings()
	if err != nil {
		return nil, ListClassesOutput{}, err
	}
	var listing dex.Listing
	if input.Wait {
		listing, err = s.core.AwaitClasses(ctx, st)
	} else {
		listing, err = s.core.ListClasses(ctx, st)
	}
	if err != nil {
		return nil, ListClassesOutput{}, errors.New(diag.Diagnostic(err))
	}

	out := ListClassesOutput{State: listing.State.String(), Classes: listing.Classes}
	if out.Classes == nil {
		out.Classes = []string{}
	}
	if listing.State == dex.NotBuilt {
		out.Message = "no DEX yet: a build was started, call list_classes again once it finishes"
	}
	return nil, out, nil
}

// Disassemble renders the bytecode listing of one class.
func (s *IDEService) Disassemble(ctx context.Context, _ *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, ExtractOutput, error) {
	return s.extract(ctx, extract.KindDisassemble, input)
}

// Decompile returns the decompiled Java source of one class.
func (s *IDEService) Decompile(ctx context.Context, _ *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, ExtractOutput, error) {
	return s.extract(ctx, extract.KindDecompile, input)
}

// ExtractSmali returns the formatted smali of one class.
func (s *IDEService) ExtractSmali(ctx context.Context, _ *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, ExtractOutput, error) {
	return s.extract(ctx, extract.KindSmali, input)
}

func (s *IDEService) extract(ctx context.Context, kind extract.Kind, input ExtractInput) (*mcp.CallToolResult, ExtractOutput, error) {
	if input.Class == "" {
		return nil, ExtractOutput{}, fmt.Errorf("class is required")
	}
	st, err := s.settings()
	if err != nil {
		return nil, ExtractOutput{}, err
	}
	req := extract.Request{Kind: kind, Class: input.Class, Settings: st}

	if input.Async {
		job, err := s.core.SubmitExtract(req)
		if err != nil {
			return nil, ExtractOutput{}, err
		}
		return nil, ExtractOutput{JobID: job.ID, Status: string(job.State)}, nil
	}

	res := s.core.Extract(ctx, req)
	out := ExtractOutput{JobID: res.JobID, Text: res.Text, Diagnostic: res.Diagnostic}
	if res.Succeeded() {
		out.Status = string(jobs.StateSucceeded)
	} else {
		out.Status = string(jobs.StateFailed)
	}
	return nil, out, nil
}

// GetSettings reports the effective settings of the project.
func (s *IDEService) GetSettings(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ GetSettingsInput,
) (*mcp.CallToolResult, SettingsOutput, error) {
	st, err := s.settings()
	if err != nil {
		return nil, SettingsOutput{}, err
	}
	return nil, settingsOutput(st), nil
}

// SetLanguageLevel persists a new language level to jide.yml.
func (s *IDEService) SetLanguageLevel(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SetLanguageLevelInput,
) (*mcp.CallToolResult, SettingsOutput, error) {
	level := config.LanguageLevel(input.Level)
	if err := level.Validate(); err != nil {
		return nil, SettingsOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := config.Load(s.root)
	if err != nil {
		return nil, SettingsOutput{}, err
	}
	st.LanguageLevel = level
	if err := config.Save(s.root, st); err != nil {
		return nil, SettingsOutput{}, err
	}
	// Report what the next call will see, host overrides included.
	eff, err := s.settings()
	if err != nil {
		return nil, SettingsOutput{}, err
	}
	return nil, settingsOutput(eff), nil
}

func settingsOutput(st config.Settings) SettingsOutput {
	return SettingsOutput{
		LanguageLevel: string(st.LanguageLevel),
		CurrentFile:   st.CurrentFile,
		JavaDir:       st.JavaDir,
		BuildDir:      st.BuildDir,
		ClasspathDir:  st.ClasspathDir,
		KeepOutputs:   st.KeepOutputs,
	}
}

func buildError(err error) error {
	if errors.Is(err, orchestrator.ErrBuildInProgress) {
		return fmt.Errorf("a build is already running, poll get_job or retry later")
	}
	return err
}
