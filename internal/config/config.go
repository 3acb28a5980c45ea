package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

type SMTP struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   *bool  `yaml:"use_tls"` // nil: implicit TLS only on port 465
	From     string `yaml:"from"`
	Retries  int    `yaml:"retries"`
}

// Enabled reports whether mail should go out over SMTP.
func (s SMTP) Enabled() bool { return s.Server != "" }

func (s SMTP) TLS() bool {
	if s.UseTLS != nil {
		return *s.UseTLS
	}
	return s.Port == 465
}

type Config struct {
	Addr     string `yaml:"addr"`      // API bind address, e.g. "127.0.0.1:8080" or ":8080" in Docker
	LogDir   string `yaml:"log_dir"`   // logs directory
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	DatabaseURL string `yaml:"database_url"` // postgres://…, sqlite://path or empty for in-memory
	DropAll     bool   `yaml:"drop_all"`     // drop the schema before migrating

	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RetryAttempts  int           `yaml:"retry_attempts"` // 1 = a single GET per cycle
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MaxFailures    int           `yaml:"max_failures"` // admin escalation threshold
	FrequencyUnit  time.Duration `yaml:"frequency_unit"`
	StoreTimeout   time.Duration `yaml:"store_timeout"`
	NotifyTimeout  time.Duration `yaml:"notify_timeout"`
	DNSDiagnostics bool          `yaml:"dns_diagnostics"`

	PublicAPIKeys  []string `yaml:"public_api_keys"`
	AdminAPIKeys   []string `yaml:"admin_api_keys"`
	AdminUsername  string   `yaml:"admin_username"`
	AdminPassword  string   `yaml:"admin_password"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	UIDir          string   `yaml:"ui_dir"` // built web UI served at /ui; empty disables it

	PublicRPM   int `yaml:"public_rpm"`
	PublicBurst int `yaml:"public_burst"`
	AdminRPM    int `yaml:"admin_rpm"`
	AdminBurst  int `yaml:"admin_burst"`

	SMTP         SMTP   `yaml:"smtp"`
	AdminEmail   string `yaml:"admin_email"`
	SlackWebhook string `yaml:"slack_webhook_url"`
}

func Defaults() Config {
	return Config{
		Addr:           "127.0.0.1:8080",
		LogDir:         "logs",
		LogLevel:       "info",
		ProbeTimeout:   10 * time.Second,
		MaxBodyBytes:   4 << 20,
		RetryAttempts:  1,
		RetryBackoff:   300 * time.Millisecond,
		MaxFailures:    3,
		FrequencyUnit:  time.Second,
		StoreTimeout:   5 * time.Second,
		NotifyTimeout:  30 * time.Second,
		DNSDiagnostics: true,
		PublicRPM:      120,
		PublicBurst:    60,
		AdminRPM:       60,
		AdminBurst:     30,
		SMTP:           SMTP{Port: 587, Retries: 3},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and finally the environment. Malformed values are reported together.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	err := applyEnv(&cfg)
	return cfg, err
}

func applyEnv(c *Config) error {
	var errs error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil || ms < 0 {
				errs = multierr.Append(errs, fmt.Errorf("%s: invalid milliseconds %q", key, v))
				return
			}
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	str("API_ADDR", &c.Addr)
	str("ADDR", &c.Addr)
	str("LOG_DIR", &c.LogDir)
	str("LOG_LEVEL", &c.LogLevel)

	str("DATABASE_URL", &c.DatabaseURL)
	flag("DROP_ALL", &c.DropAll)

	millis("HTTP_TIMEOUT_MS", &c.ProbeTimeout)
	if v := strings.TrimSpace(os.Getenv("MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("MAX_BODY_BYTES: %w", err))
		} else {
			c.MaxBodyBytes = n
		}
	}
	num("RETRY_ATTEMPTS", &c.RetryAttempts)
	millis("RETRY_BACKOFF_MS", &c.RetryBackoff)
	num("MAX_FAILURES", &c.MaxFailures)
	millis("FREQUENCY_UNIT_MS", &c.FrequencyUnit)
	millis("STORE_TIMEOUT_MS", &c.StoreTimeout)
	millis("NOTIFY_TIMEOUT_MS", &c.NotifyTimeout)
	flag("DNS_DIAGNOSTICS", &c.DNSDiagnostics)

	list("PUBLIC_API_KEYS", &c.PublicAPIKeys)
	list("ADMIN_API_KEYS", &c.AdminAPIKeys)
	str("ADMIN_USERNAME", &c.AdminUsername)
	str("ADMIN_PASSWORD", &c.AdminPassword)
	list("ALLOWED_ORIGINS", &c.AllowedOrigins)
	str("BUILD_DIRECTORY", &c.UIDir)
	str("UI_DIR", &c.UIDir)

	num("PUBLIC_RPM", &c.PublicRPM)
	num("PUBLIC_BURST", &c.PublicBurst)
	num("ADMIN_RPM", &c.AdminRPM)
	num("ADMIN_BURST", &c.AdminBurst)

	str("SMTP_SERVER", &c.SMTP.Server)
	num("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	num("SMTP_RETRIES", &c.SMTP.Retries)
	if v := strings.TrimSpace(os.Getenv("SMTP_USE_TLS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("SMTP_USE_TLS: %w", err))
		} else {
			c.SMTP.UseTLS = &b
		}
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	str("ADMIN_EMAIL", &c.AdminEmail)
	str("SLACK_WEBHOOK_URL", &c.SlackWebhook)

	return errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Storage maps DatabaseURL to a backend and the DSN that backend expects.
func (c Config) Storage() (Backend, string, error) {
	u := strings.TrimSpace(c.DatabaseURL)
	switch {
	case u == "":
		return BackendMemory, "", nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return BackendPostgres, u, nil
	case strings.HasPrefix(u, "sqlite://"):
		path := strings.TrimPrefix(u, "sqlite://")
		if path == "" {
			return "", "", errors.New("sqlite database url has no path")
		}
		return BackendSQLite, path, nil
	}
	return "", "", fmt.Errorf("unsupported database url scheme in %q", u)
}

// Validate reports misconfiguration that must stop startup.
func (c Config) Validate() error {
	var errs error
	if c.Addr == "" {
		errs = multierr.Append(errs, errors.New("addr is empty"))
	}
	if _, _, err := c.Storage(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.ProbeTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("probe timeout must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = multierr.Append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.MaxFailures < 1 {
		errs = multierr.Append(errs, errors.New("max failures must be at least 1"))
	}
	if c.FrequencyUnit <= 0 {
		errs = multierr.Append(errs, errors.New("frequency unit must be positive"))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		errs = multierr.Append(errs, errors.New("admin username and password must be set together"))
	}
	if c.SMTP.Enabled() {
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = multierr.Append(errs, fmt.Errorf("smtp port %d out of range", c.SMTP.Port))
		}
		if c.SMTP.From == "" {
			errs = multierr.Append(errs, errors.New("smtp from address is empty"))
		}
	}
	return errs
}
