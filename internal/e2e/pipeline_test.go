//go:build e2e

package e2e

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/ide"
	"github.com/dusk-indust/jide/internal/toolchain"
)

// TestRealToolchain builds the fixture project with the installed JDK and
// Android build tools. It needs javac and d8 on PATH, plus JIDE_E2E_ASSETS
// pointing at a directory holding android.jar.zip, core-lambda-stubs.jar,
// cfr.jar and baksmali.jar.
func TestRealToolchain(t *testing.T) {
	assetsDir := os.Getenv("JIDE_E2E_ASSETS")
	if assetsDir == "" {
		t.Skip("JIDE_E2E_ASSETS not set")
	}
	for _, tool := range []string{"javac", "d8", "java"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not on PATH", tool)
		}
	}

	s := copyProject(t)
	s.Tools.CFR = []string{"java", "-jar", filepath.Join(assetsDir, "cfr.jar")}
	s.Tools.Baksmali = []string{"java", "-jar", filepath.Join(assetsDir, "baksmali.jar"), "d"}
	s.Tools.Timeout = 2 * time.Minute

	logger := zap.NewNop()
	if testing.Verbose() {
		logger = zap.NewExample()
	}
	core := ide.New(ide.Options{
		Assets:  os.DirFS(assetsDir),
		Runner:  &toolchain.ExecRunner{Logger: logger},
		Logger:  logger,
		Workers: 2,
	})
	defer func() { require.NoError(t, core.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	h, err := core.Build(ctx, s)
	require.NoError(t, err)
	var stages []string
	for ev := range h.Events() {
		stages = append(stages, ev.Stage.Label())
	}
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.Diagnostic)
	assert.Len(t, stages, 3)

	listing, err := core.ListClasses(ctx, s)
	require.NoError(t, err)
	assert.Contains(t, listing.Classes, "com.example.App")
	assert.Contains(t, listing.Classes, "com.example.Shape$Square")
	assert.Contains(t, listing.Classes, "com.example.Shape$Circle")

	for _, kind := range extract.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			out := core.Extract(ctx, extract.Request{Kind: kind, Class: "com.example.Shape$Circle", Settings: s})
			require.True(t, out.Succeeded(), out.Diagnostic)
			assert.True(t, strings.Contains(out.Text, "Circle"), out.Text)
		})
	}
}
