package funcapp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseDeployNotImplemented(t *testing.T) {
	b := NewBase("app", "rg", "", false, newFakeRunner())
	err := b.Deploy(context.Background())
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestBaseIdentity(t *testing.T) {
	b := NewBase("app", "rg", "out.zip", false, newFakeRunner())
	assert.Equal(t, "app", b.Name())
	assert.Equal(t, "rg", b.ResourceGroup())
	assert.Equal(t, "out.zip", b.ArtifactPath())
}

func TestBaseCloseRemovesOwnedArtifactOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))

	b := NewBase("app", "rg", path, true, newFakeRunner())
	require.NoError(t, b.Close())
	assert.NoFileExists(t, path)

	// A file recreated at the same path is not ours any more.
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))
	require.NoError(t, b.Close())
	assert.FileExists(t, path)
}

func TestBaseCloseMissingArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.zip")
	b := NewBase("app", "rg", path, true, newFakeRunner())
	assert.NoError(t, b.Close())
}

func TestBaseCloseLeavesUnownedArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "function_app.zip")
	require.NoError(t, os.WriteFile(path, []byte("user data"), 0o644))

	b := NewBase("app", "rg", path, false, newFakeRunner())
	require.NoError(t, b.Close())
	assert.FileExists(t, path)
}

func TestBaseCloseReportsRemoveError(t *testing.T) {
	// A non-empty directory cannot be removed with os.Remove.
	dir := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "child"), 0o755))

	b := NewBase("app", "rg", dir, true, newFakeRunner())
	err := b.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove artifact")
}

func TestParseMethod(t *testing.T) {
	tests := map[string]Method{
		"":           MethodZip,
		"zip":        MethodZip,
		"ZIP":        MethodZip,
		"bundle":     MethodBundle,
		"core-tools": MethodBundle,
	}
	for in, want := range tests {
		got, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMethod("ftp")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}
