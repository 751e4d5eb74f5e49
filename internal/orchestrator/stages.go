package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/classpath"
	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/dex"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/source"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// Provisioner installs the platform jars a build compiles against.
type Provisioner interface {
	Ensure(ctx context.Context, targetDir string, level config.LanguageLevel) (classpath.Report, error)
}

// SourceScanner parses the Java source tree before the compiler runs.
type SourceScanner interface {
	Scan(ctx context.Context, root string) (*source.Tree, error)
}

// Tools runs the external compiler and dexer.
type Tools interface {
	Exec(ctx context.Context, op string, tool toolchain.Tool, args ...string) (*toolchain.Output, error)
}

const (
	stagedClasses   = "classes"
	stagedDex       = "dex"
	previousClasses = "previous-classes"
)

// ---------------------------------------------------------------------------
// classpath
// ---------------------------------------------------------------------------

type classpathStage struct {
	provisioner Provisioner
	logger      *zap.Logger
}

func (s *classpathStage) Execute(ctx context.Context, bc *BuildContext) error {
	level := bc.Settings.LanguageLevel
	dir := bc.Layout.ClasspathDir

	rep, err := s.provisioner.Ensure(ctx, dir, level)
	if err != nil {
		if diag.Is(err, diag.KindCanceled) {
			return err
		}
		return diag.Stage(StageClasspath.String(), err, "")
	}
	if len(rep.Installed) > 0 {
		s.logger.Info("classpath provisioned", zap.Strings("installed", rep.Installed))
	}

	jars := classpath.Classpath(dir, level)
	for _, jar := range jars {
		if _, err := os.Stat(jar); err != nil {
			return diag.Stage(StageClasspath.String(), fmt.Errorf("classpath entry %s: %w", jar, err), "")
		}
	}
	bc.Classpath = jars
	return nil
}

// ---------------------------------------------------------------------------
// compile
// ---------------------------------------------------------------------------

type compileStage struct {
	scanner SourceScanner
	logger  *zap.Logger
}

func (s *compileStage) Execute(ctx context.Context, bc *BuildContext) error {
	stage := StageCompile.String()
	javaDir := bc.Layout.JavaDir
	level := bc.Settings.LanguageLevel

	tree, err := s.scanner.Scan(ctx, javaDir)
	if err != nil {
		if ctx.Err() != nil {
			return diag.Canceled("build", err)
		}
		return diag.Stage(stage, err, "")
	}
	if len(tree.Files) == 0 {
		return diag.Stage(stage, fmt.Errorf("no Java sources under %s", javaDir), "")
	}
	if errs := tree.SyntaxErrors(); len(errs) > 0 {
		lines := make([]string, len(errs))
		for i, e := range errs {
			lines[i] = e.String()
		}
		return diag.Stage(stage, fmt.Errorf("%d syntax error(s)", len(errs)), strings.Join(lines, "\n"))
	}
	if !level.NeedsLambdaStubs() {
		if lambdas := tree.Lambdas(); len(lambdas) > 0 {
			lines := make([]string, len(lambdas))
			for i, l := range lambdas {
				lines[i] = fmt.Sprintf("%s:%d: %s", l.Path, l.Line, strings.ReplaceAll(l.Kind, "_", " "))
			}
			return diag.Stage(stage,
				fmt.Errorf("lambda expressions and method references need language level %s, project is at %s", config.Java8, level),
				strings.Join(lines, "\n"))
		}
	}
	bc.Sources = tree

	out := filepath.Join(bc.StagingDir, stagedClasses)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return diag.Stage(stage, err, "")
	}

	release := level.JavacRelease()
	args := []string{
		"-source", release,
		"-target", release,
		"-encoding", "UTF-8",
		"-nowarn",
		"-bootclasspath", bc.Layout.AndroidJar(),
		"-classpath", strings.Join(bc.Classpath, string(filepath.ListSeparator)),
		"-sourcepath", javaDir,
		"-d", out,
	}
	args = append(args, tree.Paths()...)

	s.logger.Debug("compiling", zap.Int("files", len(tree.Files)), zap.String("release", release))
	if res, err := bc.Tools.Exec(ctx, "javac", toolchain.Javac, args...); err != nil {
		if diag.Is(err, diag.KindCanceled) {
			return err
		}
		if res != nil && unsupportedRelease(res.Combined()) {
			return diag.Stage(stage, diag.Config("javac", fmt.Errorf(
				"the configured javac no longer accepts -source %s; language level %s needs JDK 19 or older (set tools.javac)",
				release, level)), res.Combined())
		}
		return diag.Stage(stage, err, "")
	}

	classes, err := collectClassFiles(out)
	if err != nil {
		return diag.Stage(stage, err, "")
	}
	if len(classes) == 0 {
		return diag.Stage(stage, errors.New("compiler produced no class files"), "")
	}
	bc.ClassFiles = classes
	return nil
}

// unsupportedRelease reports whether javac refused the -source/-target value,
// as JDK 20+ does for 1.7.
func unsupportedRelease(output string) bool {
	return strings.Contains(output, "is no longer supported") &&
		(strings.Contains(output, "Source option") || strings.Contains(output, "Target option"))
}

func collectClassFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".class" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect class files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ---------------------------------------------------------------------------
// dex
// ---------------------------------------------------------------------------

type dexStage struct {
	logger *zap.Logger
}

func (s *dexStage) Execute(ctx context.Context, bc *BuildContext) error {
	stage := StageDex.String()
	out := filepath.Join(bc.StagingDir, stagedDex)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return diag.Stage(stage, err, "")
	}

	args := []string{
		"--release",
		"--output", out,
		"--lib", bc.Layout.AndroidJar(),
	}
	args = append(args, bc.ClassFiles...)

	if _, err := bc.Tools.Exec(ctx, "d8", toolchain.D8, args...); err != nil {
		if diag.Is(err, diag.KindCanceled) {
			return err
		}
		return diag.Stage(stage, err, "")
	}

	staged := filepath.Join(out, layout.DexFile)
	f, err := dex.Open(staged)
	if err != nil {
		return diag.Stage(stage, diag.Parse("verify "+layout.DexFile, err), "")
	}
	bc.StagedDex = staged
	bc.Classes = f.Classes()

	if err := ctx.Err(); err != nil {
		return diag.Canceled("build", err)
	}
	if err := publish(bc); err != nil {
		return diag.Stage(stage, err, "")
	}
	s.logger.Debug("artifacts published", zap.String("dex", bc.Layout.Dex()), zap.Int("classes", len(bc.Classes)))
	return nil
}

// publish moves the staged class directory and DEX into the bin directory.
// The DEX rename is the commit point: if it fails the previous class
// directory is restored.
func publish(bc *BuildContext) error {
	l := bc.Layout
	if err := os.MkdirAll(l.BinDir, 0o755); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	prev := filepath.Join(bc.StagingDir, previousClasses)
	hadPrev := false
	if _, err := os.Stat(l.ClassesDir()); err == nil {
		if err := os.Rename(l.ClassesDir(), prev); err != nil {
			return fmt.Errorf("publish: move previous classes: %w", err)
		}
		hadPrev = true
	}
	restore := func() {
		_ = os.RemoveAll(l.ClassesDir())
		if hadPrev {
			_ = os.Rename(prev, l.ClassesDir())
		}
	}

	if err := os.Rename(filepath.Join(bc.StagingDir, stagedClasses), l.ClassesDir()); err != nil {
		restore()
		return fmt.Errorf("publish: classes: %w", err)
	}
	if err := os.Rename(bc.StagedDex, l.Dex()); err != nil {
		restore()
		return fmt.Errorf("publish: %s: %w", layout.DexFile, err)
	}
	return nil
}
