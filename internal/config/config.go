// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "path/filepath"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Storage StorageConfig
	Import  ImportConfig
	Export  ExportConfig
	Logging LoggingConfig
}

// StorageConfig holds storage backend settings.
type StorageConfig struct {
	// DataDir is the directory holding the embedded database files
	// (default: ./data). Created on demand if missing.
	DataDir string `env:"DATAKIT_DATA_DIR" default:"./data"`

	// Backend forces a specific backend instead of capability detection:
	// sqlite, bolt, or memory. Empty means auto-detect.
	Backend string `env:"DATAKIT_BACKEND"`

	// SQLiteFile is the SQLite database filename inside DataDir
	// (default: datakit.db).
	SQLiteFile string `env:"DATAKIT_SQLITE_FILE" default:"datakit.db"`

	// BoltFile is the object store filename inside DataDir
	// (default: datakit.bolt).
	BoltFile string `env:"DATAKIT_BOLT_FILE" default:"datakit.bolt"`
}

// ImportConfig holds file import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"DATAKIT_IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// ChunkSize is the number of CSV rows parsed per chunk (default: 200)
	ChunkSize int `env:"DATAKIT_IMPORT_CHUNK_SIZE" default:"200"`

	// BatchSize is the number of validated records inserted per storage
	// transaction (default: 500)
	BatchSize int `env:"DATAKIT_IMPORT_BATCH_SIZE" default:"500"`

	// ErrorPreview caps how many row errors an import result carries in
	// full detail (default: 50). The total error count is always exact.
	ErrorPreview int `env:"DATAKIT_IMPORT_ERROR_PREVIEW" default:"50"`
}

// ExportConfig holds file export settings.
type ExportConfig struct {
	// Dir is the directory exported files are written to (default: .)
	Dir string `env:"DATAKIT_EXPORT_DIR" default:"."`

	// PageSize is how many records an export fetches per storage page
	// (default: 500)
	PageSize int `env:"DATAKIT_EXPORT_PAGE_SIZE" default:"500"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SQLitePath returns the full path of the SQLite database file.
func (c *StorageConfig) SQLitePath() string {
	return filepath.Join(c.DataDir, c.SQLiteFile)
}

// BoltPath returns the full path of the object store file.
func (c *StorageConfig) BoltPath() string {
	return filepath.Join(c.DataDir, c.BoltFile)
}
