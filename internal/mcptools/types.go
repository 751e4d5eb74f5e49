package mcptools

import "github.com/dusk-indust/jide/internal/jobs"

// --- MCP Tool Types ---
// The SDK derives each tool's JSON schema from these structs.

// BuildInput is the input for the build MCP tool.
type BuildInput struct{}

// BuildOutput is the result of the build MCP tool.
type BuildOutput struct {
	Status     string   `json:"status"` // "succeeded" or "failed"
	Stages     []string `json:"stages"`
	DexPath    string   `json:"dexPath,omitempty"`
	Diagnostic string   `json:"diagnostic,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// StartBuildInput is the input for the start_build MCP tool.
type StartBuildInput struct{}

// JobOutput reports one build or extraction job.
type JobOutput struct {
	Job jobs.Job `json:"job"`
}

// GetJobInput is the input for the get_job MCP tool.
type GetJobInput struct {
	ID   string `json:"id" jsonschema:"job id returned by start_build or an async extraction"`
	Wait bool   `json:"wait,omitempty" jsonschema:"block until the job finishes"`
}

// ListClassesInput is the input for the list_classes MCP tool.
type ListClassesInput struct {
	Wait bool `json:"wait,omitempty" jsonschema:"when no DEX exists yet, wait for the triggered build and list again"`
}

// ListClassesOutput is the result of the list_classes MCP tool.
type ListClassesOutput struct {
	State   string   `json:"state"` // "ready" or "not-built"
	Classes []string `json:"classes"`
	Message string   `json:"message,omitempty"`
}

// ExtractInput is the input for the disassemble, decompile and
// extract_smali MCP tools.
type ExtractInput struct {
	Class string `json:"class" jsonschema:"dotted class name as returned by list_classes, e.g. com.example.Main"`
	Async bool   `json:"async,omitempty" jsonschema:"queue the extraction and return a job id instead of waiting"`
}

// ExtractOutput is the result of an extraction tool.
type ExtractOutput struct {
	JobID      string `json:"jobId"`
	Status     string `json:"status"` // "idle", "succeeded" or "failed"
	Text       string `json:"text,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// GetSettingsInput is the input for the get_settings MCP tool.
type GetSettingsInput struct{}

// SettingsOutput reports the effective project settings.
type SettingsOutput struct {
	LanguageLevel string `json:"languageLevel"`
	CurrentFile   string `json:"currentFile,omitempty"`
	JavaDir       string `json:"javaDir"`
	BuildDir      string `json:"buildDir"`
	ClasspathDir  string `json:"classpathDir"`
	KeepOutputs   bool   `json:"keepOutputs"`
}

// SetLanguageLevelInput is the input for the set_language_level MCP tool.
type SetLanguageLevelInput struct {
	Level string `json:"level" jsonschema:"Java language level: 7.0 or 8.0"`
}
