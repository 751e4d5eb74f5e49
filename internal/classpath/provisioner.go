// Package classpath makes sure the platform stub jars a build compiles against
// exist on disk, unpacking them from the bundled assets on first use.
package classpath

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/diag"
	"github.com/dusk-indust/jide/internal/layout"
)

// InstallKind says how an asset reaches the classpath directory.
type InstallKind int

const (
	// Unzip extracts every entry of the bundled archive into the target dir.
	Unzip InstallKind = iota
	// Copy copies the bundled file byte-for-byte.
	Copy
)

// Asset is a jar the build needs, identified by its destination name.
type Asset struct {
	Name   string // file name inside the classpath dir
	Bundle string // path inside the asset bundle
	Kind   InstallKind
	// Required reports whether the asset is needed at a language level.
	Required func(config.LanguageLevel) bool
}

// Present reports whether the asset exists in dir.
func (a Asset) Present(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, a.Name))
	return err == nil && !info.IsDir()
}

// Assets lists the platform jars in the order they are checked.
var Assets = []Asset{
	{
		Name:   layout.AndroidJar,
		Bundle: layout.AndroidJarZip,
		Kind:   Unzip,
		Required: func(config.LanguageLevel) bool {
			return true
		},
	},
	{
		Name:     layout.LambdaStubsJar,
		Bundle:   layout.LambdaStubsJar,
		Kind:     Copy,
		Required: config.LanguageLevel.NeedsLambdaStubs,
	},
}

// Report describes what one Ensure call did.
type Report struct {
	Installed []string
	Present   []string
	Skipped   []string // not required at this language level
}

// Provisioner installs Assets from a read-only bundle.
type Provisioner struct {
	bundle fs.FS
	logger *zap.Logger
}

// ErrNoBundle is returned when a missing asset must be installed but the
// Provisioner was built without a bundle.
var ErrNoBundle = errors.New("classpath: no asset bundle configured")

// New returns a Provisioner reading from bundle. A nil bundle is allowed while
// every required asset is already present.
func New(bundle fs.FS, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{bundle: bundle, logger: logger.Named("classpath")}
}

// Ensure installs every asset required at level that is missing from
// targetDir. Each check is independent: a failure on one asset does not stop
// the others, and all failures are joined into one provisioning error. Calling
// Ensure again after a failure resumes from whatever is already present.
func (p *Provisioner) Ensure(ctx context.Context, targetDir string, level config.LanguageLevel) (Report, error) {
	var rep Report
	if err := level.Validate(); err != nil {
		return rep, err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return rep, diag.Provisioning("create "+targetDir, err)
	}

	var errs []error
	for _, a := range Assets {
		if err := ctx.Err(); err != nil {
			return rep, diag.Canceled("ensure classpath", err)
		}
		if !a.Required(level) {
			rep.Skipped = append(rep.Skipped, a.Name)
			continue
		}
		if a.Present(targetDir) {
			rep.Present = append(rep.Present, a.Name)
			continue
		}
		err := p.install(a, targetDir)
		if err == nil && !a.Present(targetDir) {
			err = fmt.Errorf("classpath: %s did not yield %s", a.Bundle, a.Name)
		}
		if err != nil {
			p.logger.Warn("asset install failed", zap.String("asset", a.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		p.logger.Info("asset installed", zap.String("asset", a.Name), zap.String("dir", targetDir))
		rep.Installed = append(rep.Installed, a.Name)
	}
	if len(errs) > 0 {
		return rep, diag.Provisioning("ensure classpath", errors.Join(errs...))
	}
	return rep, nil
}

// Classpath returns the jars a build at level compiles against.
func Classpath(targetDir string, level config.LanguageLevel) []string {
	var jars []string
	for _, a := range Assets {
		if a.Required(level) {
			jars = append(jars, filepath.Join(targetDir, a.Name))
		}
	}
	return jars
}

func (p *Provisioner) install(a Asset, dir string) error {
	if p.bundle == nil {
		return fmt.Errorf("%w for %s", ErrNoBundle, a.Name)
	}
	switch a.Kind {
	case Unzip:
		return p.unzip(a.Bundle, dir)
	case Copy:
		return p.copy(a.Bundle, filepath.Join(dir, a.Name))
	}
	return fmt.Errorf("classpath: unknown install kind %d", a.Kind)
}

func (p *Provisioner) copy(bundlePath, dest string) error {
	src, err := p.bundle.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("classpath: open bundled %s: %w", bundlePath, err)
	}
	defer src.Close()
	return writeAtomic(dest, src)
}

func (p *Provisioner) unzip(bundlePath, dir string) error {
	data, err := fs.ReadFile(p.bundle, bundlePath)
	if err != nil {
		return fmt.Errorf("classpath: read bundled %s: %w", bundlePath, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("classpath: open %s: %w", bundlePath, err)
	}
	for _, f := range zr.File {
		dest, err := entryPath(dir, f.Name)
		if err != nil {
			return fmt.Errorf("classpath: %s: %w", bundlePath, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := unzipEntry(f, dest); err != nil {
			return fmt.Errorf("classpath: extract %s from %s: %w", f.Name, bundlePath, err)
		}
	}
	return nil
}

func unzipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeAtomic(dest, rc)
}

// entryPath joins a zip entry name under dir, rejecting names that escape it.
func entryPath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the target directory", name)
	}
	return filepath.Join(dir, clean), nil
}

// writeAtomic streams r into a temp file next to dest and renames it, so an
// interrupted install never leaves a truncated jar behind.
func writeAtomic(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
