// Package layout owns the fixed on-disk layout the build produces and the
// inspectors consume.
package layout

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dusk-indust/jide/internal/config"
)

const (
	AndroidJar     = "android.jar"
	AndroidJarZip  = "android.jar.zip"
	LambdaStubsJar = "core-lambda-stubs.jar"
	DexFile        = "classes.dex"
	ClassesDir     = "classes"
	CFRDir         = "cfr"
	SmaliDir       = "smali"
	StagingDir     = ".staging"
)

// ErrInvalidClassName is returned for names that are not dotted Java binary
// names.
var ErrInvalidClassName = errors.New("invalid class name")

// Layout resolves every fixed path of one project.
type Layout struct {
	JavaDir      string
	BinDir       string
	ClasspathDir string
}

// FromSettings builds a Layout from resolved settings.
func FromSettings(s config.Settings) Layout {
	return Layout{
		JavaDir:      s.JavaDir,
		BinDir:       s.BuildDir,
		ClasspathDir: s.ClasspathDir,
	}
}

func (l Layout) AndroidJar() string     { return filepath.Join(l.ClasspathDir, AndroidJar) }
func (l Layout) LambdaStubsJar() string { return filepath.Join(l.ClasspathDir, LambdaStubsJar) }
func (l Layout) Dex() string            { return filepath.Join(l.BinDir, DexFile) }
func (l Layout) ClassesDir() string     { return filepath.Join(l.BinDir, ClassesDir) }
func (l Layout) StagingDir() string     { return filepath.Join(l.BinDir, StagingDir) }

// ClassFile returns binDir/classes/<path>.class for a dotted class name.
func (l Layout) ClassFile(className string) (string, error) {
	p, err := ClassPath(className)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.ClassesDir(), p+".class"), nil
}

// CFRDir returns the decompiler output directory for one request.
func (l Layout) CFRDir(requestID string) string {
	return filepath.Join(l.BinDir, CFRDir, requestID)
}

// SmaliDir returns the smali output directory for one request.
func (l Layout) SmaliDir(requestID string) string {
	return filepath.Join(l.BinDir, SmaliDir, requestID)
}

// ClassPath converts a dotted binary name (a.b.C$D) to its slash path
// (a/b/C$D) after validating every segment.
func ClassPath(className string) (string, error) {
	if className == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidClassName)
	}
	segments := strings.Split(className, ".")
	for _, seg := range segments {
		if !validSegment(seg) {
			return "", fmt.Errorf("%w: %q", ErrInvalidClassName, className)
		}
	}
	return strings.Join(segments, "/"), nil
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i, r := range seg {
		switch {
		case r == '$' || r == '_':
		case unicode.IsLetter(r):
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}
