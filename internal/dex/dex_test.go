package dex

import (
	"context"
	"encoding/binary"
	"hash/adler32"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/jide/internal/dex/dextest"
	"github.com/dusk-indust/jide/internal/diag"
)

func TestParse_ClassNames(t *testing.T) {
	f, err := Parse(dextest.Build("a.B", "a.C$D"))
	require.NoError(t, err)

	assert.Equal(t, "035", f.Version)
	assert.ElementsMatch(t, []string{"a.B", "a.C$D"}, f.Classes())
	require.Len(t, f.Defs, 2)
	assert.Equal(t, "La/B;", f.Defs[0].Descriptor)
	assert.Equal(t, "java.lang.Object", f.Defs[0].Super)
}

func TestParse_EmptyClassTable(t *testing.T) {
	f, err := Parse(dextest.Build())
	require.NoError(t, err)
	assert.Empty(t, f.Classes())
}

func TestParse_Rejects(t *testing.T) {
	valid := dextest.Build("a.B")

	corrupt := func(mut func([]byte)) []byte {
		b := append([]byte(nil), valid...)
		mut(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "short", data: valid[:10], want: ErrTruncated},
		{name: "magic", data: corrupt(func(b []byte) { b[0] = 'x' }), want: ErrBadMagic},
		{name: "checksum", data: corrupt(func(b []byte) { b[len(b)-2] ^= 0xff }), want: ErrBadChecksum},
		{name: "size", data: valid[:len(valid)-1], want: ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	b := dextest.Build("a.B")
	copy(b[4:7], "099")
	_, err := Parse(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestParse_ClassTableOutOfBounds(t *testing.T) {
	b := dextest.Build("a.B")
	binary.LittleEndian.PutUint32(b[96:], 1000)
	refreshChecksum(b)
	_, err := Parse(b)
	require.ErrorIs(t, err, ErrTruncated)
}

func refreshChecksum(b []byte) {
	binary.LittleEndian.PutUint32(b[8:], adler32.Checksum(b[12:]))
}

func TestDescriptorConversion(t *testing.T) {
	assert.Equal(t, "a.B", DescriptorToClassName("La/B;"))
	assert.Equal(t, "a.C$D", DescriptorToClassName("La/C$D;"))
	assert.Equal(t, "Main", DescriptorToClassName("LMain;"))
	assert.Equal(t, "I", DescriptorToClassName("I"))
	assert.Equal(t, "La/B;", ClassNameToDescriptor("a.B"))
}

type fakeBuild struct{ done chan struct{} }

func (b *fakeBuild) Done() <-chan struct{} { return b.done }

func TestEnumerator_ListReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.dex")
	require.NoError(t, os.WriteFile(path, dextest.Build("a.B", "a.C$D"), 0o644))

	var builds atomic.Int32
	e := NewEnumerator(BuilderFunc(func(context.Context) (Build, error) {
		builds.Add(1)
		return &fakeBuild{done: make(chan struct{})}, nil
	}), nil)

	l, err := e.List(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Ready, l.State)
	assert.ElementsMatch(t, []string{"a.B", "a.C$D"}, l.Classes)
	assert.Zero(t, builds.Load())
}

func TestEnumerator_MissingTriggersOneBuildWithoutBlocking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.dex")

	var builds atomic.Int32
	never := &fakeBuild{done: make(chan struct{})}
	e := NewEnumerator(BuilderFunc(func(context.Context) (Build, error) {
		builds.Add(1)
		return never, nil
	}), nil)

	done := make(chan Listing, 1)
	go func() {
		l, err := e.List(context.Background(), path)
		assert.NoError(t, err)
		done <- l
	}()

	select {
	case l := <-done:
		assert.Equal(t, NotBuilt, l.State)
		assert.Empty(t, l.Classes)
		assert.Same(t, never, l.Build)
	case <-time.After(2 * time.Second):
		t.Fatal("List blocked on a missing DEX")
	}
	assert.Equal(t, int32(1), builds.Load())
}

func TestEnumerator_MalformedIsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.dex")
	require.NoError(t, os.WriteFile(path, []byte("garbage garbage"), 0o644))

	l, err := NewEnumerator(nil, nil).List(context.Background(), path)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindParse))
	assert.Empty(t, l.Classes)
}

func TestEnumerator_AwaitRetriesAfterBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.dex")
	e := NewEnumerator(BuilderFunc(func(context.Context) (Build, error) {
		b := &fakeBuild{done: make(chan struct{})}
		go func() {
			_ = os.WriteFile(path, dextest.Build("Main"), 0o644)
			close(b.done)
		}()
		return b, nil
	}), nil)

	l, err := e.Await(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Ready, l.State)
	assert.Equal(t, []string{"Main"}, l.Classes)
}

func TestEnumerator_AwaitFailedBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.dex")
	var builds atomic.Int32
	e := NewEnumerator(BuilderFunc(func(context.Context) (Build, error) {
		builds.Add(1)
		b := &fakeBuild{done: make(chan struct{})}
		close(b.done)
		return b, nil
	}), nil)

	_, err := e.Await(context.Background(), path)
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindArtifactMissing))
	assert.Equal(t, int32(1), builds.Load())
}
