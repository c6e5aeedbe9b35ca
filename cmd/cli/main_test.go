package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldUseEmbedded(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "001.sql")
	require.NoError(t, os.WriteFile(file, []byte("select 1"), 0o600))
	missing := filepath.Join(dir, "missing")

	use, err := shouldUseEmbedded("", defaultMigrationsDir)
	require.NoError(t, err)
	assert.True(t, use)

	use, err = shouldUseEmbedded(dir, defaultMigrationsDir)
	require.NoError(t, err)
	assert.False(t, use)

	use, err = shouldUseEmbedded(missing, missing)
	require.NoError(t, err)
	assert.True(t, use, "missing default dir falls back to the embedded bundle")

	_, err = shouldUseEmbedded(missing, defaultMigrationsDir)
	assert.ErrorContains(t, err, "not found")

	_, err = shouldUseEmbedded(file, defaultMigrationsDir)
	assert.ErrorContains(t, err, "not a directory")
}

func TestBundleSourceEmbedded(t *testing.T) {
	src, err := migrations(filepath.Join(t.TempDir(), "gone")).source()
	require.Error(t, err)
	assert.Nil(t, src)

	src, err = seeders("").source()
	require.NoError(t, err)
	assert.NotNil(t, src)
}
