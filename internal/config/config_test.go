package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{"PORT", "BIND", "APIKEY", "AUTH", "ECOBEE_EXPORTER_CONFIG", "ECOBEE_EXPORTER_API_KEY", "ECOBEE_EXPORTER_LISTEN_PORT", "ECOBEE_EXPORTER_LOG_LEVEL"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{"--api-key", "key"}, config.WithDotEnv(""))
	require.NoError(t, err)

	assert.Equal(t, config.CommandServe, cfg.Command)
	assert.Equal(t, "0.0.0.0", cfg.ListenAddress)
	assert.Equal(t, 9756, cfg.Port)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.Equal(t, "https://api.ecobee.com", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.APITimeout)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "pyecobee_db", cfg.StorePath)
	assert.Equal(t, "thermostat", cfg.Device)
	assert.Equal(t, 60*time.Second, cfg.ApprovalWait)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9756", cfg.Address())
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "ecobee-exporter.toml", `
log_level = "debug"

[listen]
address = "127.0.0.1"
port = 9100

[api]
key = "from-file"
timeout = "5s"

[store]
backend = "file"
path = "/var/lib/ecobee"

[auth]
wait = "2m"
`)

	cfg, err := config.Load(nil, config.WithConfigFile(path), config.WithDotEnv(""))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Address())
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, 5*time.Second, cfg.APITimeout)
	assert.Equal(t, "file", cfg.StoreBackend)
	assert.Equal(t, "/var/lib/ecobee", cfg.StorePath)
	assert.Equal(t, 2*time.Minute, cfg.ApprovalWait)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "ecobee.toml", "[api]\nkey = \"env-file\"\n")
	t.Setenv("ECOBEE_EXPORTER_CONFIG", path)

	cfg, err := config.Load(nil, config.WithDotEnv(""))
	require.NoError(t, err)
	assert.Equal(t, "env-file", cfg.APIKey)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "ecobee-exporter.toml", "This is not a valid TOML file\n")

	_, err := config.Load(nil, config.WithConfigFile(path), config.WithDotEnv(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")}, config.WithDotEnv(""))
	require.Error(t, err)
}

func TestLegacyEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9200")
	t.Setenv("BIND", "10.0.0.1")
	t.Setenv("APIKEY", "legacy")
	t.Setenv("AUTH", "/tmp/creds")

	cfg, err := config.Load(nil, config.WithDotEnv(""))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:9200", cfg.Address())
	assert.Equal(t, "legacy", cfg.APIKey)
	assert.Equal(t, "/tmp/creds", cfg.StorePath)
}

func TestPrefixedEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ECOBEE_EXPORTER_API_KEY", "prefixed")
	t.Setenv("ECOBEE_EXPORTER_LISTEN_PORT", "9300")

	cfg, err := config.Load(nil, config.WithDotEnv(""))
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.APIKey)
	assert.Equal(t, 9300, cfg.Port)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9200")
	t.Setenv("APIKEY", "env")

	cfg, err := config.Load([]string{"-p", "9400", "--api-key", "flag"}, config.WithDotEnv(""))
	require.NoError(t, err)
	assert.Equal(t, 9400, cfg.Port)
	assert.Equal(t, "flag", cfg.APIKey)
}

func TestDotEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, ".env", "APIKEY=dotenv\n")
	t.Cleanup(func() { os.Unsetenv("APIKEY") })

	cfg, err := config.Load(nil, config.WithDotEnv(path))
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.APIKey)
}

func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(nil, config.WithDotEnv(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestInvalidLogLevel(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"-k", "key", "--log-level", "loud"}, config.WithDotEnv(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid log level")
}

func TestVerbosity(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{"-k", "key", "--log-level", "error"}, config.WithDotEnv(""))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.EffectiveLogLevel())

	cfg, err = config.Load([]string{"-k", "key", "-vv"}, config.WithDotEnv(""))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Verbosity)
	assert.Equal(t, "debug", cfg.EffectiveLogLevel())
}

func TestCommands(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{"-k", "key", "authorize"}, config.WithDotEnv(""))
	require.NoError(t, err)
	assert.Equal(t, config.CommandAuthorize, cfg.Command)

	_, err = config.Load([]string{"-k", "key", "dance"}, config.WithDotEnv(""))
	require.Error(t, err)

	_, err = config.Load([]string{"-k", "key", "serve", "extra"}, config.WithDotEnv(""))
	require.Error(t, err)
}

func TestHelp(t *testing.T) {
	_, err := config.Load([]string{"--help"}, config.WithDotEnv(""))
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, config.Usage(), "--api-key")
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Command:      config.CommandServe,
			Port:         9756,
			MetricsPath:  "/metrics",
			APIKey:       "key",
			APIBaseURL:   "https://api.ecobee.com",
			APITimeout:   time.Second,
			StoreBackend: "sqlite",
			StorePath:    "db",
			Device:       "thermostat",
			LogLevel:     "info",
		}
	}

	require.NoError(t, base().Validate())

	tests := map[string]func(*config.Config){
		"port":          func(c *config.Config) { c.Port = 0 },
		"metrics path":  func(c *config.Config) { c.MetricsPath = "metrics" },
		"root path":     func(c *config.Config) { c.MetricsPath = "/" },
		"backend":       func(c *config.Config) { c.StoreBackend = "redis" },
		"store path":    func(c *config.Config) { c.StorePath = "" },
		"device":        func(c *config.Config) { c.Device = "" },
		"negative wait": func(c *config.Config) { c.ApprovalWait = -time.Second },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
