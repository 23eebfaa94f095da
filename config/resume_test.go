package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeCache_PutGetClear(t *testing.T) {
	t.Parallel()

	c := &RepositoryConfig{AbsPath: t.TempDir()}
	require.NoError(t, os.MkdirAll(markerPath(c.AbsPath), 0755))

	cache := c.OpenResumeCache()

	_, found, err := cache.Get("a.txt")
	require.NoError(t, err)
	assert.False(t, found, "expected no token recorded yet")

	require.NoError(t, cache.Put("a.txt", "token-1"))

	token, found, err := cache.Get("a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token-1", token)

	require.NoError(t, cache.Put("a.txt", "token-2"))
	token, found, err = cache.Get("a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token-2", token, "Put must overwrite the previously recorded token")

	require.NoError(t, cache.Clear("a.txt"))
	_, found, err = cache.Get("a.txt")
	require.NoError(t, err)
	assert.False(t, found, "expected the token gone after Clear")
}

func TestResumeCache_ClearOfUnknownPathIsNoOp(t *testing.T) {
	t.Parallel()

	c := &RepositoryConfig{AbsPath: t.TempDir()}
	require.NoError(t, os.MkdirAll(markerPath(c.AbsPath), 0755))

	cache := c.OpenResumeCache()
	require.NoError(t, cache.Clear("never-put.txt"))
}
