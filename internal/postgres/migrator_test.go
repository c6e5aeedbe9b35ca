package postgres

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	dbembed "github.com/benpsk/kalakaari-shop/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLFilesOrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301000002_b.sql":      {Data: []byte("select 2")},
		"20260301000001_a.sql":      {Data: []byte("select 1")},
		"README.md":                 {Data: []byte("notes")},
		"nested/20260301000003.sql": {Data: []byte("select 3")},
	}

	files, err := sqlFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"20260301000001_a.sql", "20260301000002_b.sql"}, files)
}

func TestEmbeddedBundlesAreOrdered(t *testing.T) {
	bundles := map[string]func() (fs.FS, error){
		"migrations": dbembed.MigrationsFS,
		"seeders":    dbembed.SeedersFS,
	}
	for name, open := range bundles {
		sub, err := open()
		require.NoError(t, err)
		files, err := sqlFiles(sub)
		require.NoError(t, err)
		assert.NotEmpty(t, files, name)
		assert.IsIncreasing(t, files, name)
	}
}

func TestDirFS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.sql"), []byte("select 1"), 0o600))

	fsys, err := dirFS(dir, "migration")
	require.NoError(t, err)
	files, err := sqlFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.sql"}, files)

	_, err = dirFS(filepath.Join(dir, "missing"), "migration")
	assert.ErrorContains(t, err, "not found")

	_, err = dirFS(filepath.Join(dir, "x.sql"), "seed")
	assert.ErrorContains(t, err, "not a directory")
}
