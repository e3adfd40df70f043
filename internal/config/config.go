// Package config loads ghsearch settings from the config file, GHSEARCH_*
// environment variables and flags (all through viper), and writes config
// files as TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/neekit95/gh-search/internal/domain"
	"github.com/neekit95/gh-search/internal/gh"
	"github.com/neekit95/gh-search/internal/search"
)

// EnvPrefix is the prefix of environment overrides (GHSEARCH_PAGE_SIZE, ...).
const EnvPrefix = "GHSEARCH"

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrConfigExists  = errors.New("config file already exists")
)

// Config holds all runtime configuration.
type Config struct {
	Backend           string        `mapstructure:"backend"`
	APIURL            string        `mapstructure:"api_url"`
	GraphQLURL        string        `mapstructure:"graphql_url"`
	Token             string        `mapstructure:"token"`
	Debounce          time.Duration `mapstructure:"debounce"`
	PageSize          int           `mapstructure:"page_size"`
	RemotePageSize    int           `mapstructure:"remote_page_size"`
	MaxResults        int           `mapstructure:"max_results"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RetryMax          int           `mapstructure:"retry_max"`
	Timeout           time.Duration `mapstructure:"timeout"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFile           string        `mapstructure:"log_file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend:        gh.BackendREST,
		APIURL:         gh.DefaultAPIURL,
		GraphQLURL:     gh.DefaultGraphQLURL,
		Debounce:       search.DefaultQuietWindow,
		PageSize:       search.DefaultPageSize,
		RemotePageSize: search.DefaultRemotePageSize,
		MaxResults:     domain.MaxSearchResults,
		RetryMax:       gh.DefaultRetryMax,
		Timeout:        gh.DefaultTimeout,
		LogLevel:       zerolog.LevelInfoValue,
	}
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	d := Defaults()
	viper.SetDefault("backend", d.Backend)
	viper.SetDefault("api_url", d.APIURL)
	viper.SetDefault("graphql_url", d.GraphQLURL)
	viper.SetDefault("token", d.Token)
	viper.SetDefault("debounce", d.Debounce)
	viper.SetDefault("page_size", d.PageSize)
	viper.SetDefault("remote_page_size", d.RemotePageSize)
	viper.SetDefault("max_results", d.MaxResults)
	viper.SetDefault("requests_per_minute", d.RequestsPerMinute)
	viper.SetDefault("retry_max", d.RetryMax)
	viper.SetDefault("timeout", d.Timeout)
	viper.SetDefault("log_level", d.LogLevel)
	viper.SetDefault("log_file", d.LogFile)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var problems []error
	if c.Backend != gh.BackendREST && c.Backend != gh.BackendGraphQL {
		problems = append(problems, fmt.Errorf("backend %q: want %s or %s", c.Backend, gh.BackendREST, gh.BackendGraphQL))
	}
	if !slices.Contains(search.PageSizes, c.PageSize) {
		problems = append(problems, fmt.Errorf("page_size %d: want one of %v", c.PageSize, search.PageSizes))
	}
	if c.RemotePageSize < 1 || c.RemotePageSize > domain.MaxRemotePageSize {
		problems = append(problems, fmt.Errorf("remote_page_size %d: want 1..%d", c.RemotePageSize, domain.MaxRemotePageSize))
	}
	if c.MaxResults < 1 || c.MaxResults > domain.MaxSearchResults {
		problems = append(problems, fmt.Errorf("max_results %d: want 1..%d", c.MaxResults, domain.MaxSearchResults))
	}
	if c.Debounce < 0 {
		problems = append(problems, fmt.Errorf("debounce %s: must not be negative", c.Debounce))
	}
	if c.Timeout <= 0 {
		problems = append(problems, fmt.Errorf("timeout %s: must be positive", c.Timeout))
	}
	if c.RetryMax < 0 {
		problems = append(problems, fmt.Errorf("retry_max %d: must not be negative", c.RetryMax))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Errorf("log_level %q: %w", c.LogLevel, err))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/ghsearch/config.toml (or the
// platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "ghsearch", "config.toml"), nil
}

// file is the on-disk TOML shape. Durations are written as strings
// ("400ms") so the file stays hand-editable.
type file struct {
	Backend           string `toml:"backend"`
	APIURL            string `toml:"api_url"`
	GraphQLURL        string `toml:"graphql_url"`
	Token             string `toml:"token,omitempty"`
	Debounce          string `toml:"debounce"`
	PageSize          int    `toml:"page_size"`
	RemotePageSize    int    `toml:"remote_page_size"`
	MaxResults        int    `toml:"max_results"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	RetryMax          int    `toml:"retry_max"`
	Timeout           string `toml:"timeout"`
	LogLevel          string `toml:"log_level"`
	LogFile           string `toml:"log_file,omitempty"`
}

// Marshal encodes cfg as TOML. The token is redacted unless withToken is set.
func Marshal(cfg Config, withToken bool) ([]byte, error) {
	f := file{
		Backend:           cfg.Backend,
		APIURL:            cfg.APIURL,
		GraphQLURL:        cfg.GraphQLURL,
		Debounce:          cfg.Debounce.String(),
		PageSize:          cfg.PageSize,
		RemotePageSize:    cfg.RemotePageSize,
		MaxResults:        cfg.MaxResults,
		RequestsPerMinute: cfg.RequestsPerMinute,
		RetryMax:          cfg.RetryMax,
		Timeout:           cfg.Timeout.String(),
		LogLevel:          cfg.LogLevel,
		LogFile:           cfg.LogFile,
	}
	if cfg.Token != "" {
		f.Token = "<redacted>"
		if withToken {
			f.Token = cfg.Token
		}
	}
	data, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// Write saves cfg to path, creating parent directories. An existing file is
// only replaced when force is set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	data, err := Marshal(cfg, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
