//go:build linux

package image

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileSelf(t *testing.T) {
	img, err := OpenFile("/proc/self/exe")
	if err != nil {
		// Stripped test binaries can't be symbolized.
		t.Skipf("skipping: cannot parse own binary: %v", err)
	}

	assert.NotZero(t, img.Text.Len(), "text section has a range")
	require.NotEmpty(t, img.Funcs, "a Go binary carries function symbols")

	for i, f := range img.Funcs {
		assert.True(t, img.Text.Contains(f.Range.Base), "function %s starts in .text", f.Name)
		assert.Equal(t, f.Range.Len(), uint64(len(f.Code)), "code copy matches symbol size")
		if i > 0 {
			assert.GreaterOrEqual(t, f.Range.Base, img.Funcs[i-1].Range.Base, "functions sorted by address")
		}
	}
}

func TestSelfEnumeratesOwnMapping(t *testing.T) {
	var logBuf bytes.Buffer
	images, err := Self(slog.New(slog.NewTextHandler(&logBuf, nil)), nil)
	if err != nil {
		t.Skipf("skipping: cannot read /proc/self/maps: %v", err)
	}
	require.NotEmpty(t, images, "the executable itself must appear")

	exe, err := os.Readlink("/proc/self/exe")
	require.NoError(t, err)

	found := false
	for _, img := range images {
		if img.Path == exe {
			found = true
			assert.NotEmpty(t, img.Funcs)
		}
	}
	assert.True(t, found, "own binary enumerated; got %d images", len(images))
}

func TestSelfExcludeFilters(t *testing.T) {
	images, err := Self(nil, []string{"/"})
	if err != nil {
		t.Skipf("skipping: cannot read /proc/self/maps: %v", err)
	}
	assert.Empty(t, images, "excluding / filters every file-backed image")
}

func TestOpenFileRejectsNonELF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notelf")
	require.NoError(t, err)
	_, err = f.WriteString("just text\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenFile(f.Name())
	require.Error(t, err)
}
