package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/internal/adapters/fs"
)

func TestStamp_MissingFile(t *testing.T) {
	info := fs.Stamp(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, info.IsMissing())
}

func TestStamp_CapturesMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	info := fs.Stamp(path)
	assert.False(t, info.IsMissing())
	assert.Equal(t, uint64(5), info.Size)
	assert.NotZero(t, info.ModTime.Seconds)

	// Stamps are stable while the file is untouched.
	assert.Equal(t, info, fs.Stamp(path))

	// And change when the content does.
	require.NoError(t, os.WriteFile(path, []byte("123456789"), 0o644))
	assert.NotEqual(t, info, fs.Stamp(path))
}

func TestHashString(t *testing.T) {
	assert.Equal(t, fs.HashString("abc"), fs.HashString("abc"))
	assert.NotEqual(t, fs.HashString("abc"), fs.HashString("abd"))
}
