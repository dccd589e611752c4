package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add ledger index", "add_ledger_index"},
		{"Add-Ledger-Index", "add_ledger_index"},
		{"ADD__LEDGER__INDEX", "add_ledger_index"},
		{"   spaces   ", "spaces"},
		{"outbox!@#$retention", "outboxretention"},
		{"_leading and trailing_", "leading_and_trailing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- test"), 0o644))
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"000001_ledger.up.sql", "000001_ledger.down.sql",
		"000002_outbox.up.sql", "000002_outbox.down.sql",
	)

	mf, err := CreateMigration(dir, "Add audit index", "speed up tenant audits")
	require.NoError(t, err)
	assert.Equal(t, "000003", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000003_add_audit_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000003_add_audit_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "000003 add_audit_index: speed up tenant audits")
	assert.Contains(t, string(up), "BEGIN;")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "rollback")

	next, err := NextVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestCreateMigration_NewDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(dir, "ledger", "")
	require.NoError(t, err)
	assert.Equal(t, "000001", mf.Version)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_EmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"000002_outbox.up.sql", "000002_outbox.down.sql",
		"000001_ledger.up.sql", "000001_ledger.down.sql",
		"README.md", ".gitkeep",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000009_dir.up.sql"), 0o755))

	names, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_ledger", "000002_outbox"}, names)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	names, err := ListMigrations(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
