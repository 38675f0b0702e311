// Package config loads the entitydb configuration file.
//
// A configuration file looks like:
//
//	database:
//	  driver: sqlite3      # memory, sqlite3 or postgres
//	  dsn: data/app.db
//	  read_only: false
//	streams:
//	  dir: data/streams    # empty keeps stream payloads in memory
//	schemas:
//	  dir: schemas         # CUE table declarations
//	cache:
//	  size: 256            # default for tables declaring cache: true
//
// Relative paths are resolved against the directory holding the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Defaults applied to fields left empty.
const (
	DefaultDriver     = DriverSQLite
	DefaultDSN        = "entitydb.db"
	DefaultSchemasDir = "schemas"
	DefaultCacheSize  = 256
)

// Config is the entitydb configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Streams  StreamsConfig  `yaml:"streams"`
	Schemas  SchemasConfig  `yaml:"schemas"`
	Cache    CacheConfig    `yaml:"cache"`
}

// DatabaseConfig selects the backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	ReadOnly bool   `yaml:"read_only"`
}

// StreamsConfig locates stream field payloads.
type StreamsConfig struct {
	Dir string `yaml:"dir"`
}

// SchemasConfig locates the CUE table declarations.
type SchemasConfig struct {
	Dir string `yaml:"dir"`
}

// CacheConfig sizes table caches.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// FieldError is a validation failure naming the offending field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.resolve(filepath.Dir(path))
	return c, nil
}

// Parse parses and validates configuration YAML. Unknown keys are
// rejected and an empty document yields the defaults. Paths are left as
// written.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = DefaultDSN
	}
	if c.Schemas.Dir == "" {
		c.Schemas.Dir = DefaultSchemasDir
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return &FieldError{Field: "database.driver", Message: fmt.Sprintf("unknown driver %q (want memory, sqlite3 or postgres)", c.Database.Driver)}
	}
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return &FieldError{Field: "database.dsn", Message: "required for postgres"}
	}
	if c.Database.Driver == DriverMemory && c.Database.DSN != "" {
		return &FieldError{Field: "database.dsn", Message: "not used by the memory driver"}
	}
	if c.Cache.Size < 0 {
		return &FieldError{Field: "cache.size", Message: fmt.Sprintf("must be positive, got %d", c.Cache.Size)}
	}
	return nil
}

// resolve makes file paths relative to base. A postgres DSN is not a path.
func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	if c.Database.Driver == DriverSQLite && c.Database.DSN != ":memory:" {
		c.Database.DSN = abs(c.Database.DSN)
	}
	c.Streams.Dir = abs(c.Streams.Dir)
	c.Schemas.Dir = abs(c.Schemas.Dir)
}
