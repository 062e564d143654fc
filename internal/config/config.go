// Package config loads service settings from, lowest precedence first,
// built-in defaults, an optional YAML file, .env files and the process
// environment, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"htmlpng/internal/pkg/logger"
)

// ConfigFileEnv names the YAML file when --config is not given.
const ConfigFileEnv = "HTMLPNG_CONFIG"

// MaxFileSize bounds the YAML config file.
const MaxFileSize = 1 << 20

var dotenvFiles = []string{".env.local", ".env"}

type Config struct {
	Port            int
	StagingDir      string
	MaxBodyBytes    int64
	MaxDimension    int
	RenderTimeout   time.Duration
	ShutdownTimeout time.Duration

	BrowserBin     string
	NoSandbox      bool
	AllowNetwork   bool
	KeepPartitions bool

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsKey     string

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
	LogSource bool
}

// fileConfig mirrors Config for the YAML layer. Zero values leave the lower
// layer untouched.
type fileConfig struct {
	Port            int      `yaml:"port"`
	StagingDir      string   `yaml:"staging_dir"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	MaxDimension    int      `yaml:"max_dimension"`
	RenderTimeout   string   `yaml:"render_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	BrowserBin      string   `yaml:"browser_bin"`
	NoSandbox       *bool    `yaml:"no_sandbox"`
	AllowNetwork    *bool    `yaml:"allow_network"`
	KeepPartitions  *bool    `yaml:"keep_partitions"`
	DatabaseURL     string   `yaml:"database_url"`
	RedisAddr       string   `yaml:"redis_addr"`
	RedisPassword   string   `yaml:"redis_password"`
	RedisDB         int      `yaml:"redis_db"`
	EventsKey       string   `yaml:"events_key"`
	CORSOrigins     []string `yaml:"cors_allowed_origins"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Port:               3000,
		StagingDir:         filepath.Join(os.TempDir(), "htmlpng"),
		MaxBodyBytes:       32 << 20,
		MaxDimension:       16384,
		RenderTimeout:      60 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		EventsKey:          "htmlpng:renders",
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Output:      os.Stdout,
		AddSource:   c.LogSource,
		ServiceName: "htmlpng",
	}
}

func (c *Config) HistoryEnabled() bool { return c.DatabaseURL != "" }
func (c *Config) EventsEnabled() bool  { return c.RedisAddr != "" }

// Load builds the configuration for args (os.Args[1:]). It returns
// pflag.ErrHelp when --help was requested.
func Load(args []string) (*Config, error) {
	return load(args, dotenvFiles)
}

func load(args []string, envFiles []string) (*Config, error) {
	fs, fv := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	loadDotEnv(envFiles)

	cfg := Default()

	path := fv.config
	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigFileEnv))
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyFlags(&cfg, fs, fv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535, got %d", c.Port))
	}
	if strings.TrimSpace(c.StagingDir) == "" {
		errs = append(errs, errors.New("staging dir is required"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.MaxDimension <= 0 {
		errs = append(errs, fmt.Errorf("max dimension must be positive, got %d", c.MaxDimension))
	}
	if c.RenderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("render timeout must be positive, got %s", c.RenderTimeout))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// loadDotEnv reads the files that exist. Variables already set in the
// environment win, and the first file wins over later ones.
func loadDotEnv(files []string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("config: %s exceeds %d bytes", path, MaxFileSize)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var fc fileConfig
	if err := yaml.UnmarshalWithOptions(data, &fc, yaml.Strict()); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setInt(&cfg.Port, fc.Port)
	setString(&cfg.StagingDir, fc.StagingDir)
	if fc.MaxBodyBytes != 0 {
		cfg.MaxBodyBytes = fc.MaxBodyBytes
	}
	setInt(&cfg.MaxDimension, fc.MaxDimension)
	if err := setDuration(&cfg.RenderTimeout, fc.RenderTimeout, "render_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.ShutdownTimeout, fc.ShutdownTimeout, "shutdown_timeout"); err != nil {
		return err
	}
	setString(&cfg.BrowserBin, fc.BrowserBin)
	setBool(&cfg.NoSandbox, fc.NoSandbox)
	setBool(&cfg.AllowNetwork, fc.AllowNetwork)
	setBool(&cfg.KeepPartitions, fc.KeepPartitions)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setString(&cfg.RedisPassword, fc.RedisPassword)
	setInt(&cfg.RedisDB, fc.RedisDB)
	setString(&cfg.EventsKey, fc.EventsKey)
	if origins := normalizeList(fc.CORSOrigins); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envInt("PORT", &cfg.Port))
	setString(&cfg.StagingDir, env("STAGING_DIR"))
	collect(envInt64("MAX_BODY_BYTES", &cfg.MaxBodyBytes))
	collect(envInt("MAX_DIMENSION", &cfg.MaxDimension))
	collect(envDuration("RENDER_TIMEOUT", &cfg.RenderTimeout))
	collect(envDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout))
	setString(&cfg.BrowserBin, env("ROD_BROWSER_BIN"))
	collect(envBool("ROD_NO_SANDBOX", &cfg.NoSandbox))
	collect(envBool("ALLOW_NETWORK", &cfg.AllowNetwork))
	collect(envBool("KEEP_PARTITIONS", &cfg.KeepPartitions))
	setString(&cfg.DatabaseURL, env("DATABASE_URL"))
	setString(&cfg.RedisAddr, env("REDIS_ADDR"))
	setString(&cfg.RedisPassword, env("REDIS_PASSWORD"))
	collect(envInt("REDIS_DB", &cfg.RedisDB))
	setString(&cfg.EventsKey, env("RENDER_EVENTS_KEY"))
	if origins := normalizeList(strings.Split(env("CORS_ALLOWED_ORIGINS"), ",")); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}
	setString(&cfg.LogLevel, env("LOG_LEVEL"))
	setString(&cfg.LogFormat, env("LOG_FORMAT"))
	collect(envBool("LOG_SOURCE", &cfg.LogSource))

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func env(k string) string {
	return strings.TrimSpace(os.Getenv(k))
}

func envInt(k string, dst *int) error {
	v := env(k)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", k, v)
	}
	*dst = n
	return nil
}

func envInt64(k string, dst *int64) error {
	v := env(k)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", k, v)
	}
	*dst = n
	return nil
}

func envBool(k string, dst *bool) error {
	v := env(k)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", k, v)
	}
	*dst = b
	return nil
}

func envDuration(k string, dst *time.Duration) error {
	return setDuration(dst, env(k), k)
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", name, v)
	}
	*dst = d
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
