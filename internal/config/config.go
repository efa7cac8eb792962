package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/auth"
	"codeberg.org/mutker/ecobee-exporter/internal/credentials"
	"codeberg.org/mutker/ecobee-exporter/internal/ecobee"
	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix   = "ECOBEE_EXPORTER"
	DefaultConfigName  = "ecobee-exporter"
	DefaultDotEnv      = ".env"
	DefaultAddress     = "0.0.0.0"
	DefaultPort        = 9756
	DefaultMetricsPath = "/metrics"
	DefaultLogLevel    = string(LogLevelInfo)
)

type Config struct {
	Command Command

	ListenAddress string
	Port          int
	MetricsPath   string

	APIKey     string
	APIBaseURL string
	APITimeout time.Duration

	StoreBackend string
	StorePath    string

	Device       string
	ApprovalWait time.Duration

	LogLevel  string
	Verbosity int
}

// Load reads configuration from defaults, an optional TOML file, dotenv,
// the environment and args, in increasing order of precedence. args
// excludes the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix:  DefaultEnvPrefix,
		dotEnvPath: DefaultDotEnv,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	if o.dotEnvPath != "" {
		if err := godotenv.Load(o.dotEnvPath); err != nil && !os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read dotenv file")
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	if err := bindEnv(v, o.envPrefix); err != nil {
		return nil, err
	}

	configPath := o.configPath
	if f := fs.Lookup("config"); f != nil && f.Changed {
		configPath = f.Value.String()
	} else if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	verbosity, _ := fs.GetCount("verbose")

	cfg := &Config{
		Command:       CommandServe,
		ListenAddress: v.GetString("listen.address"),
		Port:          v.GetInt("listen.port"),
		MetricsPath:   v.GetString("listen.metrics_path"),
		APIKey:        v.GetString("api.key"),
		APIBaseURL:    v.GetString("api.base_url"),
		APITimeout:    v.GetDuration("api.timeout"),
		StoreBackend:  v.GetString("store.backend"),
		StorePath:     v.GetString("store.path"),
		Device:        v.GetString("auth.device"),
		ApprovalWait:  v.GetDuration("auth.wait"),
		LogLevel:      strings.ToLower(v.GetString("log_level")),
		Verbosity:     verbosity,
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = Command(rest[0])
		if len(rest) > 1 {
			return nil, errFactory.WithMessage(errors.ErrInvalidArgument,
				fmt.Sprintf("unexpected arguments: %s", strings.Join(rest[1:], " ")))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.address", DefaultAddress)
	v.SetDefault("listen.port", DefaultPort)
	v.SetDefault("listen.metrics_path", DefaultMetricsPath)
	v.SetDefault("api.key", "")
	v.SetDefault("api.base_url", ecobee.DefaultBaseURL)
	v.SetDefault("api.timeout", ecobee.DefaultTimeout)
	v.SetDefault("store.backend", credentials.BackendSQLite)
	v.SetDefault("store.path", credentials.DefaultPath)
	v.SetDefault("auth.device", auth.DefaultDevice)
	v.SetDefault("auth.wait", auth.DefaultApprovalWait)
	v.SetDefault("log_level", DefaultLogLevel)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ecobee-exporter", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringP("bind", "b", DefaultAddress, "Address to listen on")
	fs.IntP("port", "p", DefaultPort, "Port to listen on")
	fs.String("metrics-path", DefaultMetricsPath, "Path under which to expose metrics")
	fs.StringP("api-key", "k", "", "Ecobee application API key")
	fs.String("api-base-url", ecobee.DefaultBaseURL, "Ecobee API base URL")
	fs.Duration("api-timeout", ecobee.DefaultTimeout, "Timeout for each Ecobee API request")
	fs.String("store-backend", credentials.BackendSQLite, "Credential store backend (sqlite or file)")
	fs.StringP("auth", "a", credentials.DefaultPath, "Path of the credential store")
	fs.String("device", auth.DefaultDevice, "Name of the credential record")
	fs.Duration("auth-wait", auth.DefaultApprovalWait, "Time to wait for pin approval")
	fs.StringP("log-level", "l", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.CountP("verbose", "v", "Increase verbosity")
	fs.StringP("config", "c", "", "Path to a TOML configuration file")

	return fs
}

// Usage returns flag help text for the command line.
func Usage() string {
	return newFlagSet().FlagUsages()
}

var flagKeys = map[string]string{
	"bind":          "listen.address",
	"port":          "listen.port",
	"metrics-path":  "listen.metrics_path",
	"api-key":       "api.key",
	"api-base-url":  "api.base_url",
	"api-timeout":   "api.timeout",
	"store-backend": "store.backend",
	"auth":          "store.path",
	"device":        "auth.device",
	"auth-wait":     "auth.wait",
	"log-level":     "log_level",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return errors.New().Wrap(errors.ErrBindFlags, err)
		}
	}
	return nil
}

// Legacy variable names take precedence over the prefixed ones when both
// are set.
var legacyEnv = map[string]string{
	"listen.address": "BIND",
	"listen.port":    "PORT",
	"api.key":        "APIKEY",
	"store.path":     "AUTH",
}

func bindEnv(v *viper.Viper, prefix string) error {
	replacer := strings.NewReplacer(".", "_")

	for _, key := range flagKeys {
		names := []string{}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		names = append(names, prefix+"_"+strings.ToUpper(replacer.Replace(key)))

		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return errors.New().Wrap(errors.ErrBindFlags, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return errors.New().Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read config file")
	}
	return nil
}

// Validate checks every field and reports the first problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.Command.IsValid() {
		return errFactory.WithMessage(errors.ErrInvalidArgument, fmt.Sprintf("unknown command %q", c.Command))
	}
	if !LogLevel(c.LogLevel).IsValid() && c.LogLevel != "warn" {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Port < 1 || c.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.MetricsPath, "/") || c.MetricsPath == "/" {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("metrics path %q", c.MetricsPath))
	}
	if c.APIKey == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "API key is required (--api-key or APIKEY)")
	}
	if err := c.Ecobee().Validate(); err != nil {
		return err
	}
	if err := c.Credentials().Validate(); err != nil {
		return err
	}
	return c.Auth().Validate()
}

// EffectiveLogLevel applies -v on top of the configured level.
func (c *Config) EffectiveLogLevel() string {
	if c.Verbosity > 0 {
		return string(LogLevelDebug)
	}
	return c.LogLevel
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.Port)
}

func (c *Config) Ecobee() ecobee.Config {
	return ecobee.Config{
		APIKey:  c.APIKey,
		BaseURL: c.APIBaseURL,
		Timeout: c.APITimeout,
	}
}

func (c *Config) Credentials() credentials.Config {
	return credentials.Config{
		Backend: c.StoreBackend,
		Path:    c.StorePath,
	}
}

func (c *Config) Auth() auth.Config {
	return auth.Config{
		Device:       c.Device,
		ApprovalWait: c.ApprovalWait,
	}
}
