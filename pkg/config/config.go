package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Store        StoreConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Reconcile    ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Remote.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLESIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLESIDE_APP_PORT" default:"7070"`
	LogLevel     string `envconfig:"TABLESIDE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TABLESIDE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TABLESIDE_LOG_WARN_STACK" default:"false"`
	DeviceID     string `envconfig:"TABLESIDE_DEVICE_ID" default:"local"`
	// CORSOrigins lists the browser origins allowed to call the device API.
	CORSOrigins []string `envconfig:"TABLESIDE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig points at the on-device sqlite database.
type StoreConfig struct {
	Path        string        `envconfig:"TABLESIDE_STORE_PATH" default:"tableside.db"`
	BusyTimeout time.Duration `envconfig:"TABLESIDE_STORE_BUSY_TIMEOUT" default:"5s"`
}

// DSN renders the sqlite connection string with WAL journaling and foreign keys enabled.
func (s StoreConfig) DSN() string {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		path = "tableside.db"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	busy := s.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", path, busy.Milliseconds())
}

type RemoteConfig struct {
	BaseURL        string        `envconfig:"TABLESIDE_REMOTE_BASE_URL" required:"true"`
	AuthToken      string        `envconfig:"TABLESIDE_REMOTE_AUTH_TOKEN"`
	RequestTimeout time.Duration `envconfig:"TABLESIDE_REMOTE_REQUEST_TIMEOUT" default:"10s"`
	SubmitTimeout  time.Duration `envconfig:"TABLESIDE_REMOTE_SUBMIT_TIMEOUT" default:"4s"`
}

func (r RemoteConfig) validate() error {
	base := strings.TrimSpace(r.BaseURL)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("%s must be an http(s) url, got %q", EnvRemoteBaseURL, r.BaseURL)
	}
	return nil
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `envconfig:"TABLESIDE_CONNECTIVITY_PROBE_INTERVAL" default:"5s"`
	ProbeTimeout  time.Duration `envconfig:"TABLESIDE_CONNECTIVITY_PROBE_TIMEOUT" default:"2s"`
	StartOnline   bool          `envconfig:"TABLESIDE_CONNECTIVITY_START_ONLINE" default:"false"`
}

type ReconcileConfig struct {
	Interval    time.Duration `envconfig:"TABLESIDE_RECONCILE_INTERVAL" default:"30s"`
	CallTimeout time.Duration `envconfig:"TABLESIDE_RECONCILE_CALL_TIMEOUT" default:"10s"`
}

// DevServerConfig is loaded separately by cmd/orders-devserver.
type DevServerConfig struct {
	Env      string `envconfig:"TABLESIDE_APP_ENV" default:"dev"`
	Port     string `envconfig:"TABLESIDE_DEVSERVER_PORT" default:"5050"`
	LogLevel string `envconfig:"TABLESIDE_LOG_LEVEL" default:"info"`
	Driver   string `envconfig:"TABLESIDE_DEVSERVER_DB_DRIVER" default:"sqlite"`
	DSN      string `envconfig:"TABLESIDE_DEVSERVER_DB_DSN" default:"file:orders-devserver.db?_journal_mode=WAL"`
}

func LoadDevServer() (*DevServerConfig, error) {
	var cfg DevServerConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing devserver config: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%s must be %q or %q, got %q", EnvDevServerDriver, DriverSQLite, DriverPostgres, cfg.Driver)
	}
	return &cfg, nil
}
