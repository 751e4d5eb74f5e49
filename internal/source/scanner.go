// Package source scans the Java source tree a build compiles. It parses each
// file with tree-sitter to learn its package and top-level types, and to catch
// syntax errors and Java 8 constructs before the compiler runs.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

// SyntaxError is a parse error located in a source file.
type SyntaxError struct {
	Path    string
	Line    int // 1-based
	Column  int // 1-based
	Message string
}

func (e SyntaxError) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

// Lambda is a Java 8 construct found in a source file.
type Lambda struct {
	Path string
	Line int
	Kind string // "lambda_expression" or "method_reference"
}

// File is what the scanner learned about one .java file.
type File struct {
	Path         string
	Package      string
	Types        []string // top-level type names, declaration order
	Lambdas      []Lambda
	SyntaxErrors []SyntaxError
}

// Tree is a scanned source tree.
type Tree struct {
	Root  string
	Files []File
}

// Paths returns every source file path, sorted.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths
}

// Classes returns the fully-qualified names of all top-level types.
func (t *Tree) Classes() []string {
	var out []string
	for _, f := range t.Files {
		for _, typ := range f.Types {
			if f.Package == "" {
				out = append(out, typ)
			} else {
				out = append(out, f.Package+"."+typ)
			}
		}
	}
	sort.Strings(out)
	return out
}

// SyntaxErrors returns every syntax error in the tree.
func (t *Tree) SyntaxErrors() []SyntaxError {
	var out []SyntaxError
	for _, f := range t.Files {
		out = append(out, f.SyntaxErrors...)
	}
	return out
}

// Lambdas returns every lambda or method reference in the tree.
func (t *Tree) Lambdas() []Lambda {
	var out []Lambda
	for _, f := range t.Files {
		out = append(out, f.Lambdas...)
	}
	return out
}

// Scanner parses Java sources. A new tree-sitter parser is created per file,
// so a Scanner is safe for concurrent use.
type Scanner struct {
	lang *tree_sitter.Language
}

// NewScanner returns a Scanner with the Java grammar loaded.
func NewScanner() *Scanner {
	return &Scanner{lang: tree_sitter.NewLanguage(tree_sitter_java.Language())}
}

// Scan walks root for .java files and parses each one.
func (s *Scanner) Scan(ctx context.Context, root string) (*Tree, error) {
	tree := &Tree{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".java" {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := s.ParseFile(path, src)
		if err != nil {
			return err
		}
		tree.Files = append(tree.Files, *f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: scan %s: %w", root, err)
	}
	return tree, nil
}

// ParseFile parses a single compilation unit.
func (s *Scanner) ParseFile(path string, src []byte) (*File, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(s.lang); err != nil {
		return nil, fmt.Errorf("source: set java language: %w", err)
	}
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("source: tree-sitter returned nil tree for %s", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	f := &File{Path: path}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "package_declaration":
			f.Package = packageName(child, src)
		case "class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration":
			if name := child.ChildByFieldName("name"); name != nil {
				f.Types = append(f.Types, name.Utf8Text(src))
			}
		}
	}

	cursor := root.Walk()
	defer cursor.Close()
	walk(cursor, src, f)
	return f, nil
}

func packageName(node *tree_sitter.Node, src []byte) string {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		c := node.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "scoped_identifier", "identifier":
			return c.Utf8Text(src)
		}
	}
	return ""
}

func walk(cursor *tree_sitter.TreeCursor, src []byte, f *File) {
	node := cursor.Node()
	switch {
	case node.IsMissing():
		f.SyntaxErrors = append(f.SyntaxErrors, syntaxError(f.Path, node, "missing "+node.Kind()))
	case node.IsError():
		f.SyntaxErrors = append(f.SyntaxErrors, syntaxError(f.Path, node, "unexpected "+snippet(node.Utf8Text(src))))
		// Errors inside an ERROR node are noise.
		return
	case node.Kind() == "lambda_expression" || node.Kind() == "method_reference":
		f.Lambdas = append(f.Lambdas, Lambda{
			Path: f.Path,
			Line: int(node.StartPosition().Row) + 1,
			Kind: node.Kind(),
		})
	}

	if cursor.GotoFirstChild() {
		walk(cursor, src, f)
		for cursor.GotoNextSibling() {
			walk(cursor, src, f)
		}
		cursor.GotoParent()
	}
}

func syntaxError(path string, node *tree_sitter.Node, msg string) SyntaxError {
	pos := node.StartPosition()
	return SyntaxError{
		Path:    path,
		Line:    int(pos.Row) + 1,
		Column:  int(pos.Column) + 1,
		Message: msg,
	}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	if s == "" {
		return "token"
	}
	return fmt.Sprintf("%q", s)
}
