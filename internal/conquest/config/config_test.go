package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conquest.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
format_version = "1.0"
log_level = "debug"
data_dir = "/srv/dicom/data"
database_file = "/srv/dicom/conquest.db"
compute_hash = true

[server]
hostname = "0.0.0.0"
port = "9000"

[scp]
port = 104
ae_title = "MYNODE"
write_to_catalog = false
`)
	require.NoError(t, LoadConfig(path))

	cfg := Config()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/dicom/data", cfg.DataDir)
	assert.Equal(t, "/srv/dicom/conquest.db", cfg.DatabaseFile)
	assert.True(t, cfg.ComputeHash)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 104, cfg.SCP.Port)
	assert.Equal(t, "MYNODE", cfg.SCP.AETitle)
	assert.False(t, cfg.SCP.WriteToCatalog)
	// defaults survive partial files
	assert.True(t, cfg.TruncateColumnNames)
}

func TestLoadConfigMissingFile(t *testing.T) {
	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "nope.conf")))
	assert.Error(t, LoadConfig(""))
}

func TestLoadConfigBadVersion(t *testing.T) {
	path := writeConfig(t, `format_version = "9.9"`)
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format version")
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ConfigParam)
	}{
		{"empty data dir", func(c *ConfigParam) { c.DataDir = "" }},
		{"empty database file", func(c *ConfigParam) { c.DatabaseFile = "" }},
		{"bad scp port", func(c *ConfigParam) { c.SCP.Port = 0 }},
		{"empty ae title", func(c *ConfigParam) { c.SCP.AETitle = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := defaultConfig()
			tc.mutate(c)
			assert.Error(t, ValidateConfig(c))
		})
	}
	assert.NoError(t, ValidateConfig(defaultConfig()))
}

func TestTestInitRootsPaths(t *testing.T) {
	dir := t.TempDir()
	TestInit(dir)
	cfg := Config()
	assert.True(t, IsTest())
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "conquest.db"), cfg.DatabaseFile)
}
