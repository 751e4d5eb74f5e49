package toolchaintest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/jide/internal/classfile"
	"github.com/dusk-indust/jide/internal/classfile/classfiletest"
	"github.com/dusk-indust/jide/internal/dex"
	"github.com/dusk-indust/jide/internal/dex/dextest"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// JDK returns a Runner whose four tools behave like the real ones closely
// enough for end-to-end tests: javac emits a hello-world class per source
// file, d8 packs the class files it is given, cfr and baksmali write one
// output file per class.
func JDK() *Runner {
	return New().
		Handle(toolchain.Javac, Javac).
		Handle(toolchain.D8, D8).
		Handle(toolchain.CFR, CFR).
		Handle(toolchain.Baksmali, Baksmali)
}

// Javac writes -d/<rel>.class for every .java argument, rel being its path
// under -sourcepath.
func Javac(_ context.Context, inv toolchain.Invocation) (*toolchain.Output, error) {
	out, src := Flag(inv.Argv, "-d"), Flag(inv.Argv, "-sourcepath")
	for _, arg := range inv.Argv {
		if filepath.Ext(arg) != ".java" {
			continue
		}
		rel, err := filepath.Rel(src, arg)
		if err != nil {
			return nil, err
		}
		internal := filepath.ToSlash(strings.TrimSuffix(rel, ".java"))
		if err := writeFile(filepath.Join(out, strings.TrimSuffix(rel, ".java")+".class"), classfiletest.Hello(internal)); err != nil {
			return nil, err
		}
	}
	return &toolchain.Output{}, nil
}

// D8 writes --output/classes.dex listing the classes defined by its class
// file arguments.
func D8(_ context.Context, inv toolchain.Invocation) (*toolchain.Output, error) {
	var names []string
	for _, arg := range inv.Argv {
		if filepath.Ext(arg) != ".class" {
			continue
		}
		c, err := classfile.Open(arg)
		if err != nil {
			return &toolchain.Output{ExitCode: 1, Stderr: []byte(err.Error())}, nil
		}
		names = append(names, strings.ReplaceAll(c.Name(), "/", "."))
	}
	return &toolchain.Output{}, writeFile(filepath.Join(Flag(inv.Argv, "--output"), "classes.dex"), dextest.Build(names...))
}

// CFR writes --outputdir/<path>.java for the class file argument.
func CFR(_ context.Context, inv toolchain.Invocation) (*toolchain.Output, error) {
	var classPath string
	for _, arg := range inv.Argv {
		if filepath.Ext(arg) == ".class" {
			classPath = arg
		}
	}
	c, err := classfile.Open(classPath)
	if err != nil {
		return &toolchain.Output{ExitCode: 1, Stderr: []byte(err.Error())}, nil
	}
	name := c.Name()
	simple := name[strings.LastIndex(name, "/")+1:]
	body := fmt.Sprintf("public class %s {\n    public static void main(String[] args) {\n        System.out.println(\"Hello, World!\");\n    }\n}\n", simple)
	if dir := filepath.Dir(filepath.FromSlash(name)); dir != "." {
		body = fmt.Sprintf("package %s;\n\n%s", strings.ReplaceAll(filepath.ToSlash(dir), "/", "."), body)
	}
	dest := filepath.Join(Flag(inv.Argv, "--outputdir"), filepath.FromSlash(name)+".java")
	return &toolchain.Output{Stdout: []byte("Processing " + name + "\n")}, writeFile(dest, []byte(body))
}

// Baksmali writes -o/<path>.smali for every class of the DEX argument.
func Baksmali(_ context.Context, inv toolchain.Invocation) (*toolchain.Output, error) {
	var dexPath string
	for _, arg := range inv.Argv {
		if filepath.Ext(arg) == ".dex" {
			dexPath = arg
		}
	}
	f, err := dex.Open(dexPath)
	if err != nil {
		return &toolchain.Output{ExitCode: 1, Stderr: []byte(err.Error())}, nil
	}
	out := Flag(inv.Argv, "-o")
	for _, name := range f.Classes() {
		rel := strings.ReplaceAll(name, ".", "/")
		if err := writeFile(filepath.Join(out, filepath.FromSlash(rel)+".smali"), []byte(Smali(rel))); err != nil {
			return nil, err
		}
	}
	return &toolchain.Output{}, nil
}

// Smali is the unformatted smali Baksmali writes for the internal class name.
func Smali(internal string) string {
	return fmt.Sprintf(`.class public L%s;
.super Ljava/lang/Object;

.method public static main([Ljava/lang/String;)V
    .registers 2
    .prologue
    .line 4
    sget-object v0, Ljava/lang/System;->out:Ljava/io/PrintStream;
    const-string v1, "Hello, World!"
    invoke-virtual {v0, v1}, Ljava/io/PrintStream;->println(Ljava/lang/String;)V
    :return
    return-void
.end method
`, internal)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
