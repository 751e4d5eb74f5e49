package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MainTemplate returns the source written for a new class.
func MainTemplate(className string) string {
	return fmt.Sprintf(`public class %s {

    public static void main(String[] args) {
        System.out.println("Hello, World!");
    }
}
`, className)
}

// EnsureMain writes javaDir/Main.java when the tree holds no .java file yet.
// It returns the path of the created file, or "" if nothing was written.
func EnsureMain(javaDir string) (string, error) {
	found := false
	err := filepath.WalkDir(javaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == javaDir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".java" {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("source: inspect %s: %w", javaDir, err)
	}
	if found {
		return "", nil
	}

	if err := os.MkdirAll(javaDir, 0o755); err != nil {
		return "", fmt.Errorf("source: create %s: %w", javaDir, err)
	}
	path := filepath.Join(javaDir, "Main.java")
	if err := os.WriteFile(path, []byte(MainTemplate("Main")), 0o644); err != nil {
		return "", fmt.Errorf("source: write %s: %w", path, err)
	}
	return path, nil
}
