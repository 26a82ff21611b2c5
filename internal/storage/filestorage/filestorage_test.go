package filestorage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesAndPreallocates(t *testing.T) {
	dir := t.TempDir()
	sto, err := New(dir)
	require.NoError(t, err)

	f, exists, err := sto.Open(filepath.Join("sub", "foo.dat"), 100)
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, exists)

	fi, err := os.Stat(filepath.Join(dir, "sub", "foo.dat"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), fi.Size())
}

func TestOpenExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.dat"), []byte("hello"), 0o640))

	sto, err := New(dir)
	require.NoError(t, err)

	f, exists, err := sto.Open("foo.dat", 5)
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, exists)

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}
