package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUpWalksParents(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	want := filepath.Join(root, "a", FileName)
	require.NoError(t, os.WriteFile(want, []byte("ISR_TRIGGER_COUNT=3\n"), 0o644))

	got, err := FindUp(nested, FileName)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindUpSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "marker.d"), 0o755))

	got, err := FindUp(root, "marker.d")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEnsureIsNoopUnderGoTest(t *testing.T) {
	t.Setenv("GOTEST_LOAD_DOTENV", "")
	assert.NoError(t, Ensure())
	assert.Empty(t, LoadedPath())
}
