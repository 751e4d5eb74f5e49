package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Stage("compile", errors.New("exit status 1"), "Main.java:3: error: ';' expected")
	assert.Equal(t, "build-stage: build [compile]: exit status 1", err.Error())
}

func TestKindOf_WrappedChain(t *testing.T) {
	inner := Parse("open dex", errors.New("bad magic"))
	wrapped := fmt.Errorf("dex: list: %w", inner)

	assert.Equal(t, KindParse, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIs_NestedKinds(t *testing.T) {
	err := Stage("classpath", Provisioning("unzip android.jar.zip", errors.New("disk full")), "")

	assert.True(t, Is(err, KindBuildStage))
	assert.True(t, Is(err, KindProvisioning))
	assert.False(t, Is(err, KindParse))
}

func TestDiagnostic_IncludesToolOutput(t *testing.T) {
	err := Tool("decompile", errors.New("exit status 2"), "  cfr: no such class  \n")
	d := Diagnostic(err)

	assert.Contains(t, d, "external-tool: decompile: exit status 2")
	assert.Contains(t, d, "cfr: no such class")
}

func TestDiagnostic_Nil(t *testing.T) {
	assert.Empty(t, Diagnostic(nil))
}

func TestPanicError_CarriesStack(t *testing.T) {
	err := PanicError("build", "boom")
	require.Error(t, err)
	assert.Equal(t, KindInternal, err.Kind)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.NotEmpty(t, err.Output)
}
