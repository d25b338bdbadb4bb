// Package config handles aqlc runtime configuration.
//
// Configuration lives in aqlc.toml, not in AQL source files: an AQL
// query never carries a tenant id, a catalog DSN, or a ClickHouse
// address, so none of that can leak through a compiled query.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the complete runtime configuration, loaded from aqlc.toml in
// the project directory.
type Config struct {
	// Catalog configures the property-definition oracle.
	Catalog CatalogConfig `toml:"catalog"`

	// ClickHouse configures the query execution transport.
	ClickHouse ClickHouseConfig `toml:"clickhouse"`

	// Tenant holds the default tenant id used by the CLI and local dev
	// server when a request does not supply one.
	Tenant TenantConfig `toml:"tenant"`

	// Features holds the default feature-flag set threaded into
	// schema.Options for every compile.
	Features FeaturesConfig `toml:"features"`

	// Limits holds compile-time defaults the printer needs.
	Limits LimitsConfig `toml:"limits"`

	// Environments holds environment-specific overrides, selected by
	// the AQLC_ENV environment variable.
	Environments map[string]EnvironmentOverride `toml:"environments"`
}

// CatalogConfig holds the property-definition catalog's connection
// settings. URL supports the "env:" prefix to read from the environment.
type CatalogConfig struct {
	URL      string `toml:"url"`
	PoolSize int    `toml:"pool_size"`
}

// ClickHouseConfig holds the execution transport's connection settings.
type ClickHouseConfig struct {
	Addr     []string `toml:"addr"`
	Database string   `toml:"database"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
}

// TenantConfig holds the default tenant used outside an authenticated
// HTTP request (the CLI, and the local dev server's own default).
type TenantConfig struct {
	DefaultID int64 `toml:"default_id"`
}

// FeaturesConfig mirrors schema.Options as plain TOML-friendly booleans.
type FeaturesConfig struct {
	PersonOnEventsOverride bool `toml:"person_on_events_override"`
}

// LimitsConfig holds compile-time defaults handed to internal/printer.
type LimitsConfig struct {
	DefaultLimit int64 `toml:"default_limit"`
}

// EnvironmentOverride holds environment-specific configuration overrides.
type EnvironmentOverride struct {
	Catalog    CatalogConfig    `toml:"catalog"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Tenant     TenantConfig     `toml:"tenant"`
	Limits     LimitsConfig     `toml:"limits"`
}

// Load loads configuration from aqlc.toml in the given directory. If the
// file does not exist, Load returns the default configuration rather
// than an error, so `aqlc check`/`aqlc build` work with zero setup.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "aqlc.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse aqlc.toml: %w", err)
	}
	cfg.applyDefaults()

	env := os.Getenv("AQLC_ENV")
	if env == "" {
		env = "development"
	}
	if override, ok := cfg.Environments[env]; ok {
		cfg.applyOverride(&override)
	}

	return &cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{PoolSize: 10},
		Tenant:  TenantConfig{DefaultID: 1},
		Limits:  LimitsConfig{DefaultLimit: 100},
	}
}

func (c *Config) applyDefaults() {
	defaults := defaultConfig()
	if c.Catalog.PoolSize == 0 {
		c.Catalog.PoolSize = defaults.Catalog.PoolSize
	}
	if c.Tenant.DefaultID == 0 {
		c.Tenant.DefaultID = defaults.Tenant.DefaultID
	}
	if c.Limits.DefaultLimit == 0 {
		c.Limits.DefaultLimit = defaults.Limits.DefaultLimit
	}
}

func (c *Config) applyOverride(o *EnvironmentOverride) {
	if o.Catalog.URL != "" {
		c.Catalog.URL = o.Catalog.URL
	}
	if o.Catalog.PoolSize != 0 {
		c.Catalog.PoolSize = o.Catalog.PoolSize
	}
	if len(o.ClickHouse.Addr) > 0 {
		c.ClickHouse.Addr = o.ClickHouse.Addr
	}
	if o.ClickHouse.Database != "" {
		c.ClickHouse.Database = o.ClickHouse.Database
	}
	if o.Tenant.DefaultID != 0 {
		c.Tenant.DefaultID = o.Tenant.DefaultID
	}
	if o.Limits.DefaultLimit != 0 {
		c.Limits.DefaultLimit = o.Limits.DefaultLimit
	}
}

// ResolveSecrets resolves every "env:" prefixed value to its actual
// environment-variable value. Call this once after Load.
func (c *Config) ResolveSecrets() {
	c.Catalog.URL = resolveEnvValue(c.Catalog.URL)
	c.ClickHouse.Username = resolveEnvValue(c.ClickHouse.Username)
	c.ClickHouse.Password = resolveEnvValue(c.ClickHouse.Password)
}

func resolveEnvValue(value string) string {
	if len(value) > 4 && value[:4] == "env:" {
		return os.Getenv(value[4:])
	}
	return value
}
