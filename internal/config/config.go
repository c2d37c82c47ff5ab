// Package config loads luna-history settings from defaults, an optional YAML
// file and LUNA_HISTORY_* environment variables, in increasing precedence.
//
// The legacy COSMIC_LLM_DB_PATH variable is honoured for the database path
// so existing installs keep working.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, with dots in the
// key replaced by underscores: database.path -> LUNA_HISTORY_DATABASE_PATH.
const EnvPrefix = "LUNA_HISTORY"

// ConfigFileEnv names the variable consulted when no config file is passed.
const ConfigFileEnv = "LUNA_HISTORY_CONFIG"

// LegacyDBPathEnv is the database path variable of the owning application.
const LegacyDBPathEnv = "COSMIC_LLM_DB_PATH"

// Memory engines. EngineMemory keeps memories in process and loses them on
// exit.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// Conversation sources. SourceFixture serves a YAML fixture from memory
// instead of reading the database.
const (
	SourceSQLite  = "sqlite"
	SourceFixture = "fixture"
)

// ErrNoDatabasePath is returned by Validate when no database path is set.
var ErrNoDatabasePath = errors.New("config: database path is required (set database.path, " +
	EnvPrefix + "_DATABASE_PATH or " + LegacyDBPathEnv + ")")

// Config holds all configuration settings.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Search       SearchConfig       `mapstructure:"search"`
	Titles       TitlesConfig       `mapstructure:"titles"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
}

// DatabaseConfig locates the conversation database.
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// ConversationConfig selects where conversation history is read from.
// Fixture is a YAML file path; empty means the built-in sample.
type ConversationConfig struct {
	Source  string `mapstructure:"source"`
	Fixture string `mapstructure:"fixture"`
}

// MemoryConfig selects where long-term memory lives. The sqlite engine
// keeps it in the conversation database file.
type MemoryConfig struct {
	Engine      string `mapstructure:"engine"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// SearchConfig bounds result sizes for keyword searches and listings.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// TitlesConfig bounds title search results.
type TitlesConfig struct {
	Limit int `mapstructure:"limit"`
}

// BreakerConfig tunes the per-store circuit breakers.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains transport settings.
type ServerConfig struct {
	RateLimit     float64 `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst     int     `mapstructure:"rate_burst"`
	WebSocketAddr string  `mapstructure:"websocket_addr"` // empty disables the listener
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("conversation.source", SourceSQLite)
	v.SetDefault("conversation.fixture", "")
	v.SetDefault("memory.engine", EngineSQLite)
	v.SetDefault("memory.postgres_dsn", "")
	v.SetDefault("search.default_limit", 50)
	v.SetDefault("search.max_limit", 200)
	v.SetDefault("titles.limit", 100)
	v.SetDefault("breaker.max_failures", 3)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.websocket_addr", "")
	v.SetDefault("log.level", "info")
}

// LoadConfig builds a Config. path may be empty, in which case the file
// named by LUNA_HISTORY_CONFIG is read if set. LoadConfig does not validate;
// call Validate before using the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH", LegacyDBPathEnv); err != nil {
		return nil, fmt.Errorf("config: bind database path: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Memory.Engine = strings.ToLower(strings.TrimSpace(cfg.Memory.Engine))
	cfg.Conversation.Source = strings.ToLower(strings.TrimSpace(cfg.Conversation.Source))
	return &cfg, nil
}

// Validate reports the first setting that would prevent startup. When
// either store reads the database, the file must already exist: this process
// never creates it.
func (c *Config) Validate() error {
	switch c.Conversation.Source {
	case SourceSQLite:
	case SourceFixture:
		if c.Conversation.Fixture != "" {
			if _, err := os.Stat(c.Conversation.Fixture); err != nil {
				return fmt.Errorf("config: conversation fixture %s: %w", c.Conversation.Fixture, err)
			}
		}
	default:
		return fmt.Errorf("config: unknown conversation.source %q (want %s or %s)", c.Conversation.Source, SourceSQLite, SourceFixture)
	}

	switch c.Memory.Engine {
	case EngineSQLite, EngineMemory:
	case EnginePostgres:
		if c.Memory.PostgresDSN == "" {
			return errors.New("config: memory.postgres_dsn is required when memory.engine is postgres")
		}
	default:
		return fmt.Errorf("config: unknown memory.engine %q (want %s, %s or %s)", c.Memory.Engine, EngineSQLite, EnginePostgres, EngineMemory)
	}

	if c.NeedsDatabase() {
		if strings.TrimSpace(c.Database.Path) == "" {
			return ErrNoDatabasePath
		}
		info, err := os.Stat(c.Database.Path)
		if err != nil {
			return fmt.Errorf("config: database %s: %w", c.Database.Path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("config: database %s is a directory", c.Database.Path)
		}
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("config: database.busy_timeout_ms must not be negative, got %d", c.Database.BusyTimeoutMs)
	}

	if c.Search.DefaultLimit < 1 || c.Search.MaxLimit < 1 || c.Titles.Limit < 1 {
		return errors.New("config: search.default_limit, search.max_limit and titles.limit must be positive")
	}
	if c.Breaker.MaxFailures < 1 {
		return errors.New("config: breaker.max_failures must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return errors.New("config: breaker.timeout must be positive")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("config: server.rate_limit and server.rate_burst must not be negative")
	}
	return nil
}

// NeedsDatabase reports whether either store reads the SQLite file.
func (c *Config) NeedsDatabase() bool {
	return c.Conversation.Source == SourceSQLite || c.Memory.Engine == EngineSQLite
}
