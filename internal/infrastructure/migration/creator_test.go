package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"create stock movements", "create_stock_movements"},
		{"Create-Stock-Movements", "create_stock_movements"},
		{"CREATE_STOCK_MOVEMENTS", "create_stock_movements"},
		{"add__expiry__index", "add_expiry_index"},
		{"Add Index 123", "add_index_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	tmpDir := t.TempDir()

	mf, err := CreateMigration(tmpDir, "create stock movements", "Append-only movement ledger table")
	require.NoError(t, err)
	require.NotNil(t, mf)

	// Version is a YYYYMMDDHHMMSS timestamp
	assert.Len(t, mf.Version, 14)

	assert.True(t, strings.HasSuffix(mf.UpPath, ".up.sql"))
	assert.True(t, strings.HasSuffix(mf.DownPath, ".down.sql"))

	upBase := strings.TrimSuffix(filepath.Base(mf.UpPath), ".up.sql")
	downBase := strings.TrimSuffix(filepath.Base(mf.DownPath), ".down.sql")
	assert.Equal(t, upBase, downBase)

	upContent, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "create stock movements")
	assert.Contains(t, string(upContent), "Append-only movement ledger table")
	assert.Contains(t, string(upContent), "Write your UP migration SQL here")

	downContent, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")
	assert.Contains(t, string(downContent), "Write your DOWN migration SQL here")
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(nestedPath, "test", "test migration")
	require.NoError(t, err)
	assert.NotNil(t, mf)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{
		"000001_create_reference_tables.up.sql",
		"000001_create_reference_tables.down.sql",
		"000002_create_stock_movements.up.sql",
		"000002_create_stock_movements.down.sql",
		"000003_create_stock_positions_view.up.sql",
		"000003_create_stock_positions_view.down.sql",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, f), []byte("-- test"), 0644))
	}

	migrations, err := ListMigrations(tmpDir)
	require.NoError(t, err)
	assert.Len(t, migrations, 3)
	assert.Contains(t, migrations, "000001_create_reference_tables")
	assert.Contains(t, migrations, "000002_create_stock_movements")
	assert.Contains(t, migrations, "000003_create_stock_positions_view")
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	migrations, err := ListMigrations(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestListMigrations_IgnoresNonMigrationFiles(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"README.md",
		".gitkeep",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, f), []byte("test"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "subdir.up.sql"), 0755))

	migrations, err := ListMigrations(tmpDir)
	require.NoError(t, err)
	assert.Len(t, migrations, 1)
	assert.Contains(t, migrations, "000001_init")
}
