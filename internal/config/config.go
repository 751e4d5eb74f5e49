package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/jide/internal/diag"
)

// LanguageLevel is the Java source/target level a project compiles against.
type LanguageLevel string

const (
	Java7 LanguageLevel = "7.0"
	Java8 LanguageLevel = "8.0"
)

// DefaultLanguageLevel is used when the settings file does not name one.
const DefaultLanguageLevel = Java7

// Validate returns a config error for anything other than 7.0 or 8.0.
func (l LanguageLevel) Validate() error {
	switch l {
	case Java7, Java8:
		return nil
	}
	return diag.Config("language level", fmt.Errorf("unsupported language level %q (want 7.0 or 8.0)", string(l)))
}

// JavacRelease returns the value passed to -source/-target.
func (l LanguageLevel) JavacRelease() string {
	if l == Java8 {
		return "1.8"
	}
	return "1.7"
}

// NeedsLambdaStubs reports whether core-lambda-stubs.jar must be on the
// classpath.
func (l LanguageLevel) NeedsLambdaStubs() bool { return l == Java8 }

// FileNames are the settings files probed by Load, in order.
var FileNames = []string{"jide.yml", "jide.yaml"}

// Settings holds the project-level settings loaded from jide.yml. The host
// owns the load/save lifecycle; the core receives a copy per call.
type Settings struct {
	LanguageLevel LanguageLevel `yaml:"languageLevel,omitempty" mapstructure:"languageLevel"`
	CurrentFile   string        `yaml:"currentFile,omitempty" mapstructure:"currentFile"`
	JavaDir       string        `yaml:"javaDir,omitempty" mapstructure:"javaDir"`
	BuildDir      string        `yaml:"buildDir,omitempty" mapstructure:"buildDir"`
	ClasspathDir  string        `yaml:"classpathDir,omitempty" mapstructure:"classpathDir"`
	AssetsDir     string        `yaml:"assetsDir,omitempty" mapstructure:"assetsDir"`
	Workers       int           `yaml:"workers,omitempty" mapstructure:"workers"`
	KeepOutputs   bool          `yaml:"keepOutputs,omitempty" mapstructure:"keepOutputs"`
	Tools         ToolsConfig   `yaml:"tools,omitempty" mapstructure:"tools"`
	Logger        LoggerConfig  `yaml:"logger,omitempty" mapstructure:"logger"`
}

// ToolsConfig holds the argv prefix of every external tool. Arguments computed
// by the core are appended to these.
type ToolsConfig struct {
	Javac    []string      `yaml:"javac,omitempty" mapstructure:"javac"`
	D8       []string      `yaml:"d8,omitempty" mapstructure:"d8"`
	CFR      []string      `yaml:"cfr,omitempty" mapstructure:"cfr"`
	Baksmali []string      `yaml:"baksmali,omitempty" mapstructure:"baksmali"`
	Timeout  time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// LoggerConfig configures internal/observability.
type LoggerConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`
	Format     string `yaml:"format,omitempty" mapstructure:"format"`
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty" mapstructure:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups,omitempty" mapstructure:"maxBackups"`
}

// Defaults returns the settings used when no file exists.
func Defaults() Settings {
	return Settings{
		LanguageLevel: DefaultLanguageLevel,
		JavaDir:       "java",
		BuildDir:      "bin",
		ClasspathDir:  "classpath",
		AssetsDir:     "assets",
		Workers:       4,
		Tools: ToolsConfig{
			Javac:    []string{"javac"},
			D8:       []string{"d8"},
			CFR:      []string{"java", "-jar", "cfr.jar"},
			Baksmali: []string{"java", "-jar", "baksmali.jar", "d"},
		},
		Logger: LoggerConfig{Level: "info", Format: "console"},
	}
}

// WithDefaults fills every zero field from Defaults.
func (s Settings) WithDefaults() Settings {
	d := Defaults()
	if s.LanguageLevel == "" {
		s.LanguageLevel = d.LanguageLevel
	}
	if s.JavaDir == "" {
		s.JavaDir = d.JavaDir
	}
	if s.BuildDir == "" {
		s.BuildDir = d.BuildDir
	}
	if s.ClasspathDir == "" {
		s.ClasspathDir = d.ClasspathDir
	}
	if s.AssetsDir == "" {
		s.AssetsDir = d.AssetsDir
	}
	if s.Workers <= 0 {
		s.Workers = d.Workers
	}
	if len(s.Tools.Javac) == 0 {
		s.Tools.Javac = d.Tools.Javac
	}
	if len(s.Tools.D8) == 0 {
		s.Tools.D8 = d.Tools.D8
	}
	if len(s.Tools.CFR) == 0 {
		s.Tools.CFR = d.Tools.CFR
	}
	if len(s.Tools.Baksmali) == 0 {
		s.Tools.Baksmali = d.Tools.Baksmali
	}
	if s.Logger.Level == "" {
		s.Logger.Level = d.Logger.Level
	}
	if s.Logger.Format == "" {
		s.Logger.Format = d.Logger.Format
	}
	return s
}

// Validate checks the settings a build depends on.
func (s Settings) Validate() error {
	if err := s.LanguageLevel.Validate(); err != nil {
		return err
	}
	if s.Workers < 0 {
		return diag.Config("workers", fmt.Errorf("workers must be >= 0, got %d", s.Workers))
	}
	return nil
}

// Resolve returns a copy with every relative directory made absolute against
// projectRoot.
func (s Settings) Resolve(projectRoot string) Settings {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(projectRoot, p)
	}
	s.JavaDir = abs(s.JavaDir)
	s.BuildDir = abs(s.BuildDir)
	s.ClasspathDir = abs(s.ClasspathDir)
	s.AssetsDir = abs(s.AssetsDir)
	if s.CurrentFile != "" {
		s.CurrentFile = abs(s.CurrentFile)
	}
	return s
}

// Load attempts to read jide.yml or jide.yaml from the given directory.
// Returns the defaults (not an error) if no settings file exists. A file that
// exists but cannot be read or parsed is a config error.
func Load(dir string) (Settings, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Settings{}, diag.Config("read "+name, err)
		}
		var s Settings
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, diag.Config("parse "+name, err)
		}
		s = s.WithDefaults()
		if err := s.Validate(); err != nil {
			return Settings{}, err
		}
		return s, nil
	}
	return Defaults(), nil
}

// Save writes s to dir/jide.yml, or to whichever settings file already exists.
func Save(dir string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	path := filepath.Join(dir, FileNames[0])
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return diag.Config("encode settings", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return diag.Config("save settings", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return diag.Config("save settings", err)
	}
	return nil
}
