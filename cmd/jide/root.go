package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/ide"
	"github.com/dusk-indust/jide/internal/observability"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// app carries the state one command invocation shares. Tests fill the
// first block; main leaves it nil.
type app struct {
	runner  toolchain.Runner
	assets  fs.FS
	console zapcore.WriteSyncer
	stdout  io.Writer
	stderr  io.Writer

	v        *viper.Viper
	root     string
	settings config.Settings
	logger   *zap.Logger
	core     *ide.Core
}

// overlay binds a settings key to its environment variable and, when flag is
// set, to a persistent flag.
type overlay struct {
	key  string
	env  string
	flag string
}

var overlays = []overlay{
	{key: "languageLevel", env: "JIDE_LANGUAGE_LEVEL", flag: "level"},
	{key: "javaDir", env: "JIDE_JAVA_DIR"},
	{key: "buildDir", env: "JIDE_BUILD_DIR"},
	{key: "classpathDir", env: "JIDE_CLASSPATH_DIR"},
	{key: "assetsDir", env: "JIDE_ASSETS_DIR", flag: "assets"},
	{key: "workers", env: "JIDE_WORKERS", flag: "workers"},
	{key: "keepOutputs", env: "JIDE_KEEP_OUTPUTS", flag: "keep-outputs"},
	{key: "tools.javac", env: "JIDE_JAVAC"},
	{key: "tools.d8", env: "JIDE_D8"},
	{key: "tools.cfr", env: "JIDE_CFR"},
	{key: "tools.baksmali", env: "JIDE_BAKSMALI"},
	{key: "tools.timeout", env: "JIDE_TOOLS_TIMEOUT", flag: "timeout"},
	{key: "logger.level", env: "JIDE_LOG_LEVEL", flag: "log-level"},
	{key: "logger.format", env: "JIDE_LOG_FORMAT", flag: "log-format"},
	{key: "logger.file", env: "JIDE_LOG_FILE"},
}

func newRootCmd(a *app) *cobra.Command {
	a.v = viper.New()

	cmd := &cobra.Command{
		Use:           "jide",
		Short:         "Build Java sources to DEX and inspect the result.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	cmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	if a.stdout != nil {
		cmd.SetOut(a.stdout)
	}
	if a.stderr != nil {
		cmd.SetErr(a.stderr)
	}

	pf := cmd.PersistentFlags()
	pf.StringP("project", "C", ".", "project root holding jide.yml")
	pf.String("level", "", "Java language level (7.0 or 8.0)")
	pf.String("assets", "", "directory holding android.jar.zip and core-lambda-stubs.jar")
	pf.Int("workers", 0, "concurrent background extractions")
	pf.Bool("keep-outputs", false, "keep per-request decompiler and smali output directories")
	pf.Duration("timeout", 0, "deadline for each external tool run (0 disables)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console or json)")

	for _, o := range overlays {
		_ = a.v.BindEnv(o.key, o.env)
		if o.flag != "" {
			_ = a.v.BindPFlag(o.key, pf.Lookup(o.flag))
		}
	}

	cmd.AddCommand(
		newInitCmd(a),
		newBuildCmd(a),
		newClassesCmd(a),
		newExtractCmd(a, "disassemble", "Print the bytecode listing of a compiled class"),
		newExtractCmd(a, "decompile", "Decompile a compiled class to Java source"),
		newExtractCmd(a, "smali", "Print the formatted smali of a class from the DEX"),
		newProvisionCmd(a),
		newConfigCmd(a),
		newServeMCPCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load reads jide.yml from the project root and applies the environment and
// flag overlay on top of it.
func (a *app) load(cmd *cobra.Command) error {
	project, _ := cmd.Flags().GetString("project")
	root, err := filepath.Abs(project)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	a.root = root

	s, err := a.loadSettings()
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = observability.New(a.settings.Logger, a.console)
	a.logger.Debug("settings loaded", zap.String("project", root), zap.String("level", string(a.settings.LanguageLevel)))
	return nil
}

// loadSettings reads jide.yml and layers the environment and flags over it.
// serve-mcp calls it again for every tool call.
func (a *app) loadSettings() (config.Settings, error) {
	s, err := config.Load(a.root)
	if err != nil {
		return config.Settings{}, err
	}
	s = applyOverlay(a.v, s)
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s.Resolve(a.root), nil
}

func applyOverlay(v *viper.Viper, s config.Settings) config.Settings {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	argv := func(key string, dst *[]string) {
		if v.IsSet(key) {
			*dst = v.GetStringSlice(key)
		}
	}

	if v.IsSet("languageLevel") {
		s.LanguageLevel = config.LanguageLevel(v.GetString("languageLevel"))
	}
	str("javaDir", &s.JavaDir)
	str("buildDir", &s.BuildDir)
	str("classpathDir", &s.ClasspathDir)
	str("assetsDir", &s.AssetsDir)
	if v.IsSet("workers") {
		s.Workers = v.GetInt("workers")
	}
	if v.IsSet("keepOutputs") {
		s.KeepOutputs = v.GetBool("keepOutputs")
	}
	argv("tools.javac", &s.Tools.Javac)
	argv("tools.d8", &s.Tools.D8)
	argv("tools.cfr", &s.Tools.CFR)
	argv("tools.baksmali", &s.Tools.Baksmali)
	if v.IsSet("tools.timeout") {
		s.Tools.Timeout = v.GetDuration("tools.timeout")
	}
	str("logger.level", &s.Logger.Level)
	str("logger.format", &s.Logger.Format)
	str("logger.file", &s.Logger.File)
	return s.WithDefaults()
}

// ide returns the Core, creating it on first use.
func (a *app) ide() *ide.Core {
	if a.core != nil {
		return a.core
	}
	assets := a.assets
	if assets == nil {
		assets = os.DirFS(a.settings.AssetsDir)
	}
	a.core = ide.New(ide.Options{
		Assets:  assets,
		Runner:  a.runner,
		Logger:  a.logger,
		Workers: a.settings.Workers,
	})
	return a.core
}

func (a *app) close() error {
	var err error
	if a.core != nil {
		err = a.core.Close()
		a.core = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
