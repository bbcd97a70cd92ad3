package fileserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebridge/internal/fault"
)

func TestResolveRejectsTraversal(t *testing.T) {
	// The root deliberately does not exist: rejection must happen on
	// path arithmetic alone, before any filesystem access.
	share, err := NewShare(filepath.Join(t.TempDir(), "missing-root"))
	require.NoError(t, err)

	for _, name := range []string{
		"",
		"..",
		"../etc/passwd",
		"..\\windows\\system32",
		"sub/../../escape.xlsx",
		"/etc/passwd",
		"dir/file.xlsx",
	} {
		_, err := share.Resolve(name)
		require.Error(t, err, "name %q must be rejected", name)
		assert.Equal(t, fault.Access, fault.KindOf(err), "name %q", name)
	}
}

func TestResolvePlainName(t *testing.T) {
	root := t.TempDir()
	share, err := NewShare(root)
	require.NoError(t, err)

	path, err := share.Resolve("orders.xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(share.Root(), "orders.xlsx"), path)
}

func TestStatMissingFile(t *testing.T) {
	share, err := NewShare(t.TempDir())
	require.NoError(t, err)

	_, err = share.Stat("missing.xlsx")
	require.Error(t, err)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestListFiltersTabularFiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"orders.csv", "report.xlsx", "notes.txt", "legacy.XLS"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "archive.xlsx.d"), 0o755))

	share, err := NewShare(root)
	require.NoError(t, err)

	files, err := share.List()
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
		assert.GreaterOrEqual(t, f.Size, int64(0))
		assert.False(t, f.Modified.IsZero())
	}
	assert.ElementsMatch(t, []string{"orders.csv", "report.xlsx", "legacy.XLS"}, names)
}

func TestListUnreachableRoot(t *testing.T) {
	share, err := NewShare(filepath.Join(t.TempDir(), "unmounted"))
	require.NoError(t, err)
	require.False(t, share.Exists())

	_, err = share.List()
	require.Error(t, err)
	assert.Equal(t, fault.Access, fault.KindOf(err))
}
