package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile points the loader at a file that does not exist.
func noEnvFile(t *testing.T) string {
	t.Helper()
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("KYOBO_TIMEOUT", "20s")
	t.Setenv("KYOBO_MAX_RESULTS", "50")

	cfg, err := Load([]string{noEnvFile(t), "-timeout=5s"})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 50, cfg.Kyobo.MaxResults)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "KYOBO_DETAIL_WORKERS=4\nLOG_LEVEL=debug\n# comment\nKYOBO_TEST_ONLY_KEY=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() {
		os.Unsetenv("KYOBO_DETAIL_WORKERS")
		os.Unsetenv("KYOBO_TEST_ONLY_KEY")
	})

	cfg, err := Load([]string{"-env-file=" + path})
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Kyobo.DetailWorkers)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, "from-file", os.Getenv("KYOBO_TEST_ONLY_KEY"))
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load([]string{noEnvFile(t), "-search-ttl=soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KYOBO_SEARCH_TTL")
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"-not-a-flag"})
	require.Error(t, err)
}

func TestLoad_BoolToggles(t *testing.T) {
	t.Setenv("KYOBO_RICH_DESCRIPTIONS", "yes")

	cfg, err := Load([]string{noEnvFile(t), "-toc-api-first=1"})
	require.NoError(t, err)

	assert.True(t, cfg.Kyobo.PreferTOCAPI)
	assert.True(t, cfg.Kyobo.RichDescriptions)
}

func TestLoad_UserAgentList(t *testing.T) {
	t.Setenv("KYOBO_USER_AGENTS", "Agent/1.0 (X11; Linux) | Agent/2.0 (Macintosh, Intel) |")

	cfg, err := Load([]string{noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"Agent/1.0 (X11; Linux)", "Agent/2.0 (Macintosh, Intel)"}, cfg.HTTP.UserAgents)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad environment", func(c *Config) { c.App.Environment = "test" }, true},
		{"uppercase environment", func(c *Config) { c.App.Environment = "DEVELOPMENT" }, true},
		{"uppercase level accepted", func(c *Config) { c.Logger.Level = "DEBUG" }, false},
		{"bad level", func(c *Config) { c.Logger.Level = "trace" }, true},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, true},
		{"zero retries", func(c *Config) { c.HTTP.MaxRetries = 0 }, true},
		{"max delay below base", func(c *Config) { c.HTTP.MaxDelay = 500 * time.Millisecond }, true},
		{"no rate limit allowed", func(c *Config) { c.HTTP.MinInterval = 0 }, false},
		{"zero capacity", func(c *Config) { c.Cache.DetailCapacity = 0 }, true},
		{"zero ttl", func(c *Config) { c.Cache.SearchTTL = 0 }, true},
		{"too many results", func(c *Config) { c.Kyobo.MaxResults = 101 }, true},
		{"no workers", func(c *Config) { c.Kyobo.DetailWorkers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("KYOBO_PRECEDENCE_TEST", "env")

	assert.Equal(t, "flag", getConfigValue("flag", "KYOBO_PRECEDENCE_TEST", "default"))
	assert.Equal(t, "env", getConfigValue("", "KYOBO_PRECEDENCE_TEST", "default"))
	assert.Equal(t, "default", getConfigValue("", "KYOBO_UNSET_FOR_TEST", "default"))
}

func TestGetIntConfigValue_InvalidFallsBack(t *testing.T) {
	t.Setenv("KYOBO_INT_TEST", "two")
	assert.Equal(t, 7, getIntConfigValue("", "KYOBO_INT_TEST", 7))
	assert.Equal(t, 3, getIntConfigValue(" 3", "KYOBO_INT_TEST", 7))
}
