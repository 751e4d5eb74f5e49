package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/classfile"
	"github.com/dusk-indust/jide/internal/classpath"
	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/layout"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// ErrInvalidClassName is returned for names that are not dotted Java binary
// names, including anything that would escape the output tree.
var ErrInvalidClassName = layout.ErrInvalidClassName

// Disassemble renders the compiled class file of className as a bytecode
// listing.
func (s *Service) Disassemble(_ context.Context, settings config.Settings, className string) (string, error) {
	const op = "disassemble"
	path, err := classFile(op, settings, className)
	if err != nil {
		return "", err
	}
	c, err := classfile.Open(path)
	if err != nil {
		return "", diag.Parse(op, fmt.Errorf("%s: %w", path, err))
	}
	text, err := classfile.Disassemble(c)
	if err != nil {
		return "", diag.Parse(op, fmt.Errorf("%s: %w", path, err))
	}
	return text, nil
}

// Decompile runs the decompiler on the class file of className with the
// platform jars as extra classpath, then reads back the generated source.
func (s *Service) Decompile(ctx context.Context, settings config.Settings, className string) (string, error) {
	const op = "decompile"
	path, err := classFile(op, settings, className)
	if err != nil {
		return "", err
	}
	l := layout.FromSettings(settings)
	rel, _ := layout.ClassPath(className)

	out, cleanup, err := s.requestDir(op, l.CFRDir(uuid.NewString()), settings.KeepOutputs)
	if err != nil {
		return "", err
	}
	defer cleanup()

	extra := classpath.Classpath(l.ClasspathDir, settings.LanguageLevel)
	tools := toolchain.New(s.runner, settings.Tools)
	res, err := tools.Exec(ctx, op, toolchain.CFR,
		path,
		"--extraclasspath", strings.Join(extra, string(filepath.ListSeparator)),
		"--outputdir", out,
	)
	if err != nil {
		return "", err
	}
	return readBack(op, filepath.Join(out, rel+".java"), res)
}

// ExtractSmali runs the smali disassembler over the whole DEX and returns
// the formatted smali of className.
func (s *Service) ExtractSmali(ctx context.Context, settings config.Settings, className string) (string, error) {
	const op = "extract smali"
	rel, err := layout.ClassPath(className)
	if err != nil {
		return "", diag.ArtifactMissing(op, err)
	}
	l := layout.FromSettings(settings)
	if err := requireFile(l.Dex()); err != nil {
		return "", diag.ArtifactMissing(op, fmt.Errorf("no %s, build the project first: %w", layout.DexFile, err))
	}

	out, cleanup, err := s.requestDir(op, l.SmaliDir(uuid.NewString()), settings.KeepOutputs)
	if err != nil {
		return "", err
	}
	defer cleanup()

	tools := toolchain.New(s.runner, settings.Tools)
	res, err := tools.Exec(ctx, op, toolchain.Baksmali, l.Dex(), "-o", out)
	if err != nil {
		return "", err
	}
	text, err := readBack(op, filepath.Join(out, rel+".smali"), res)
	if err != nil {
		return "", err
	}
	return FormatSmali(text), nil
}

// classFile resolves and checks the compiled class file of className.
func classFile(op string, settings config.Settings, className string) (string, error) {
	path, err := layout.FromSettings(settings).ClassFile(className)
	if err != nil {
		return "", diag.ArtifactMissing(op, err)
	}
	if err := requireFile(path); err != nil {
		return "", diag.ArtifactMissing(op, fmt.Errorf("class %s is not compiled: %w", className, err))
	}
	return path, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// requestDir creates an isolated output directory for one request. The
// returned cleanup removes it unless keep is set.
func (s *Service) requestDir(op, dir string, keep bool) (string, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, diag.New(diag.KindInternal, op, err)
	}
	return dir, func() {
		if keep {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("output cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}, nil
}

// readBack reads a tool's output file. A missing file after a clean exit
// means the tool produced nothing for the class.
func readBack(op, path string, res *toolchain.Output) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("tool produced no %s", filepath.Base(path))
		}
		return "", diag.Tool(op, err, res.Combined())
	}
	return string(data), nil
}
