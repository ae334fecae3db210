package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundtrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	name, err := fs.Save("Fence Photo.PNG", []byte("bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".png"), "extension normalized, name regenerated")
	assert.NotContains(t, name, "Fence")

	data, err := fs.Read(name)
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)

	require.NoError(t, fs.Delete(name))
	_, err = fs.Read(name)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, fs.Delete(name), "deleting a missing file is not an error")
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Read("../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fs.Delete("../x"), ErrNotFound)
}
