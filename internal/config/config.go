// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	HTTP   HTTPConfig
	Cache  CacheConfig
	Kyobo  KyoboConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// HTTPConfig holds retrieval client configuration.
type HTTPConfig struct {
	Timeout     time.Duration // Per-attempt timeout (default: 15s)
	MaxRetries  int           // Attempts per request including the first (default: 3)
	BaseDelay   time.Duration // First backoff delay (default: 1s)
	MaxDelay    time.Duration // Backoff cap (default: 4s)
	MinInterval time.Duration // Minimum gap between any two requests (default: 1s)
	UserAgents  []string      // Optional override of the rotated User-Agent list
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	SearchTTL      time.Duration // default: 30m
	DetailTTL      time.Duration // default: 60m
	SearchCapacity int           // default: 100
	DetailCapacity int           // default: 200
	SweepInterval  time.Duration // default: 5m
}

// KyoboConfig holds scraping behaviour toggles.
type KyoboConfig struct {
	MaxResults       int  // Default listing cap when callers pass 0 (default: 20)
	DetailWorkers    int  // Concurrent detail fetches in batch enrichment (default: 2)
	PreferTOCAPI     bool // Query discovered contents endpoints even when the page has a TOC
	RichDescriptions bool // Convert descriptions with the full markdown converter
	CoverWidth       int  // Requested cover width in pixels (default: 458)
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("kyobo", flag.ContinueOnError)
	return LoadFlags(fs, args)
}

// LoadFlags registers the configuration flags on fs, parses args and builds the config.
// Callers that add their own flags to fs read them after LoadFlags returns.
func LoadFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	timeout := fs.String("timeout", "", "Per-attempt HTTP timeout (default: 15s)")
	retries := fs.String("retries", "", "Attempts per request (default: 3)")
	minInterval := fs.String("min-interval", "", "Minimum gap between requests (default: 1s)")

	searchTTL := fs.String("search-ttl", "", "Search cache TTL (default: 30m)")
	detailTTL := fs.String("detail-ttl", "", "Detail cache TTL (default: 60m)")

	maxResults := fs.String("max-results", "", "Default maximum listing results (default: 20)")
	workers := fs.String("detail-workers", "", "Concurrent detail fetches (default: 2)")
	preferTOCAPI := fs.String("toc-api-first", "", "Query contents endpoints before trusting the page TOC")
	richDesc := fs.String("rich-descriptions", "", "Use full markdown conversion for descriptions")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Variables already present in the environment win over the file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %q: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			MaxRetries: getIntConfigValue(*retries, "KYOBO_MAX_RETRIES", 3),
			UserAgents: getListConfigValue("", "KYOBO_USER_AGENTS"),
		},
		Cache: CacheConfig{
			SearchCapacity: getIntConfigValue("", "KYOBO_SEARCH_CACHE_SIZE", 100),
			DetailCapacity: getIntConfigValue("", "KYOBO_DETAIL_CACHE_SIZE", 200),
		},
		Kyobo: KyoboConfig{
			MaxResults:       getIntConfigValue(*maxResults, "KYOBO_MAX_RESULTS", 20),
			DetailWorkers:    getIntConfigValue(*workers, "KYOBO_DETAIL_WORKERS", 2),
			PreferTOCAPI:     getBoolConfigValue(*preferTOCAPI, "KYOBO_TOC_API_FIRST", false),
			RichDescriptions: getBoolConfigValue(*richDesc, "KYOBO_RICH_DESCRIPTIONS", false),
			CoverWidth:       getIntConfigValue("", "KYOBO_COVER_WIDTH", 458),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dst       *time.Duration
	}{
		{*timeout, "KYOBO_TIMEOUT", "15s", &cfg.HTTP.Timeout},
		{"", "KYOBO_BASE_DELAY", "1s", &cfg.HTTP.BaseDelay},
		{"", "KYOBO_MAX_DELAY", "4s", &cfg.HTTP.MaxDelay},
		{*minInterval, "KYOBO_MIN_INTERVAL", "1s", &cfg.HTTP.MinInterval},
		{*searchTTL, "KYOBO_SEARCH_TTL", "30m", &cfg.Cache.SearchTTL},
		{*detailTTL, "KYOBO_DETAIL_TTL", "60m", &cfg.Cache.DetailTTL},
		{"", "KYOBO_CACHE_SWEEP", "5m", &cfg.Cache.SweepInterval},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		HTTP: HTTPConfig{
			Timeout:     15 * time.Second,
			MaxRetries:  3,
			BaseDelay:   time.Second,
			MaxDelay:    4 * time.Second,
			MinInterval: time.Second,
		},
		Cache: CacheConfig{
			SearchTTL:      30 * time.Minute,
			DetailTTL:      60 * time.Minute,
			SearchCapacity: 100,
			DetailCapacity: 200,
			SweepInterval:  5 * time.Minute,
		},
		Kyobo: KyoboConfig{
			MaxResults:    20,
			DetailWorkers: 2,
			CoverWidth:    458,
		},
	}
}

// Validate checks that all config values are present and within range.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.HTTP.Timeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	if c.HTTP.MaxRetries < 1 {
		return errors.New("max retries must be at least 1")
	}
	if c.HTTP.BaseDelay < 0 || c.HTTP.MaxDelay < c.HTTP.BaseDelay {
		return fmt.Errorf("invalid backoff: base %s, max %s", c.HTTP.BaseDelay, c.HTTP.MaxDelay)
	}
	if c.HTTP.MinInterval < 0 {
		return errors.New("min interval cannot be negative")
	}

	if c.Cache.SearchCapacity < 1 || c.Cache.DetailCapacity < 1 {
		return errors.New("cache capacities must be at least 1")
	}
	if c.Cache.SearchTTL <= 0 || c.Cache.DetailTTL <= 0 {
		return errors.New("cache TTLs must be positive")
	}

	if c.Kyobo.MaxResults < 1 || c.Kyobo.MaxResults > 100 {
		return fmt.Errorf("max results %d out of range [1,100]", c.Kyobo.MaxResults)
	}
	if c.Kyobo.DetailWorkers < 1 {
		return errors.New("detail workers must be at least 1")
	}
	if c.Kyobo.CoverWidth < 1 {
		return errors.New("cover width must be positive")
	}

	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envKey != "" {
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return defaultValue
	}
	return result
}

// getListConfigValue splits a "|" separated value. User-Agent strings contain
// commas and semicolons, so neither works as a separator.
func getListConfigValue(flagValue, envKey string) []string {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(strValue, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
