// Package config loads and validates the catalog service configuration from
// a TOML file. The configuration covers the data tree, the catalog database,
// the optional schema definition file, the DICOM listener, and the admin
// HTTP server.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Version is the supported configuration file format version.
const Version = "1.0"

// DefaultConfigFile is where the CLI looks for configuration when no
// --config flag is given.
const DefaultConfigFile = "/etc/conquestdb/conquest.conf"

// ServerConfig holds the admin HTTP server configuration.
type ServerConfig struct {
	HostName string `toml:"hostname"` // Hostname for the admin server
	Port     string `toml:"port"`     // Port for the admin server
}

// SCPConfig holds the DICOM listener configuration.
type SCPConfig struct {
	Port           int    `toml:"port"`             // Listen port for inbound associations
	AETitle        string `toml:"ae_title"`         // Application entity title of this node
	WriteToCatalog bool   `toml:"write_to_catalog"` // Index received objects into the catalog
}

// ConfigParam holds all configuration parameters for the catalog service.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	LogLevel     string `toml:"log_level"`     // error, warn, info or debug
	DataDir      string `toml:"data_dir"`      // Root of the per-patient DICOM file tree
	DatabaseFile string `toml:"database_file"` // Path of the sqlite catalog file
	SchemaFile   string `toml:"schema_file"`   // Optional conquest-style column definition file

	ComputeHash         bool `toml:"compute_hash"`          // Compute content hashes for RT objects
	TruncateColumnNames bool `toml:"truncate_column_names"` // Truncate column names to 10 chars, conquest style

	Server ServerConfig `toml:"server"`
	SCP    SCPConfig    `toml:"scp"`
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// InitDefaults installs the built-in configuration. Used when no config file
// exists at the default location.
func InitDefaults() {
	cfg = defaultConfig()
}

// LoadConfig loads configuration from a TOML file and validates it.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	c := defaultConfig()
	if _, err := toml.Decode(string(content), c); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	cfg = c
	return nil
}

func defaultConfig() *ConfigParam {
	return &ConfigParam{
		FormatVersion:       Version,
		LogLevel:            "error",
		DataDir:             "data",
		DatabaseFile:        "conquest.db",
		SchemaFile:          "dicom.sql",
		TruncateColumnNames: true,
		Server: ServerConfig{
			HostName: "localhost",
			Port:     "8290",
		},
		SCP: SCPConfig{
			Port:           5678,
			AETitle:        "CONQUESTSRV1",
			WriteToCatalog: true,
		},
	}
}

// ValidateConfig checks if all required configuration values are present and
// valid.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DatabaseFile == "" {
		return fmt.Errorf("database_file is required")
	}
	if c.SCP.Port <= 0 || c.SCP.Port > 65535 {
		return fmt.Errorf("scp.port must be a valid port number")
	}
	if c.SCP.AETitle == "" {
		return fmt.Errorf("scp.ae_title is required")
	}
	return nil
}

var isTest = false

// IsTest reports whether the package runs in test mode.
func IsTest() bool {
	return isTest
}

// TestInit configures the package for tests with all paths rooted at dir.
// Each test gets its own catalog file so concurrent tests never interfere.
func TestInit(dir string) {
	isTest = true
	cfg = defaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DatabaseFile = filepath.Join(dir, "conquest.db")
	cfg.SchemaFile = filepath.Join(dir, "dicom.sql")
	cfg.ComputeHash = true
}
