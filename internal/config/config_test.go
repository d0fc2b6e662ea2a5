package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCleanEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		original, existed := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if existed {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoad_DataDir_FromEXITBOOK_DATA_DIR(t *testing.T) {
	withCleanEnv(t, "EXITBOOK_DATA_DIR", "DATA_DIR")

	tmpDir := t.TempDir()
	os.Setenv("EXITBOOK_DATA_DIR", tmpDir)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, absPath, cfg.DataDir)
}

func TestLoad_DataDir_FallsBackToLegacyDATA_DIR(t *testing.T) {
	withCleanEnv(t, "EXITBOOK_DATA_DIR", "DATA_DIR")

	tmpDir := t.TempDir()
	os.Setenv("DATA_DIR", tmpDir)

	cfg, err := Load()
	require.NoError(t, err)

	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, absPath, cfg.DataDir)
}

func TestLoad_DataDir_EXITBOOK_DATA_DIRTakesPrecedence(t *testing.T) {
	withCleanEnv(t, "EXITBOOK_DATA_DIR", "DATA_DIR")

	primary := t.TempDir()
	legacy := t.TempDir()
	os.Setenv("EXITBOOK_DATA_DIR", primary)
	os.Setenv("DATA_DIR", legacy)

	cfg, err := Load()
	require.NoError(t, err)

	absPrimary, err := filepath.Abs(primary)
	require.NoError(t, err)
	assert.Equal(t, absPrimary, cfg.DataDir)
}

func TestLoad_DataDir_ResolvesRelativeToAbsolute(t *testing.T) {
	withCleanEnv(t, "EXITBOOK_DATA_DIR", "DATA_DIR")

	// Relative paths resolve against the test process's working directory (os.Getwd()).
	os.Setenv("EXITBOOK_DATA_DIR", "./relative-data-dir")
	t.Cleanup(func() { os.RemoveAll("./relative-data-dir") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir))

	expected, err := filepath.Abs("./relative-data-dir")
	require.NoError(t, err)
	assert.Equal(t, expected, cfg.DataDir)
}

func TestLoad_DataDir_CreatesDirectoryIfNeeded(t *testing.T) {
	withCleanEnv(t, "EXITBOOK_DATA_DIR", "DATA_DIR")

	tmpDir := filepath.Join(t.TempDir(), "new-data-dir")
	os.Setenv("EXITBOOK_DATA_DIR", tmpDir)

	cfg, err := Load()
	require.NoError(t, err)

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err, "directory should be created")
	assert.True(t, info.IsDir())
}

func TestLoad_DefaultsAndDerivedPaths(t *testing.T) {
	withCleanEnv(t, "EXITBOOK_DATA_DIR", "DATA_DIR", "LOG_LEVEL", "PORT", "CSV_IMPORT_DIR",
		"DEDUP_PROVIDER_WINDOW", "DEDUP_MANAGER_WINDOW", "CIRCUIT_FAILURE_THRESHOLD")

	tmpDir := t.TempDir()
	os.Setenv("EXITBOOK_DATA_DIR", tmpDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, 500, cfg.Dedup.ProviderWindowSize)
	assert.Equal(t, 500, cfg.Dedup.ManagerWindowSize)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, filepath.Join(cfg.DataDir, "ledger.db"), cfg.LedgerPath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "cache.db"), cfg.CachePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "csv-imports"), cfg.CSVImport.Directory)
}

func TestValidate_RejectsNonPositiveDedupWindow(t *testing.T) {
	cfg := &Config{
		DataDir: "/tmp",
		Dedup:   DedupConfig{ProviderWindowSize: 0, ManagerWindowSize: 500},
		Circuit: CircuitBreakerConfig{FailureThreshold: 5},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup window")
}

func TestValidate_RejectsNonPositiveFailureThreshold(t *testing.T) {
	cfg := &Config{
		DataDir: "/tmp",
		Dedup:   DedupConfig{ProviderWindowSize: 500, ManagerWindowSize: 500},
		Circuit: CircuitBreakerConfig{FailureThreshold: 0},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure threshold")
}
