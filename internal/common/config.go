package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
)

// ConfigFileEnv names the env var pointing at an optional YAML config file.
const ConfigFileEnv = "TRANSCRIBER_CONFIG"

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Upload    UploadConfig    `yaml:"upload"`
	Polling   PollingConfig   `yaml:"polling"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr     string `yaml:"http_addr"`
	GRPCAddr     string `yaml:"grpc_addr"`
	ListPageSize int    `yaml:"list_page_size"`
}

// ProviderConfig holds speech-to-text provider configuration
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// UploadConfig holds file validation and spill configuration
type UploadConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	AllowedFormats []string `yaml:"allowed_formats"`
	TempDir        string   `yaml:"temp_dir"`
}

// PollingConfig holds status polling configuration
type PollingConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxRetries int           `yaml:"max_retries"`
	MaxWait    time.Duration `yaml:"max_wait"`
}

// ReaperConfig holds stuck-job cleanup configuration
type ReaperConfig struct {
	StuckAfter time.Duration `yaml:"stuck_after"`
	PageSize   int           `yaml:"page_size"`
}

// ReconcileConfig holds reconciliation configuration
type ReconcileConfig struct {
	PageSize    int `yaml:"page_size"`
	Concurrency int `yaml:"concurrency"`
}

// TrackingConfig sizes the background pool following accepted jobs; zero workers disables it.
type TrackingConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AccountsConfig decides how requests without an account reference are owned.
type AccountsConfig struct {
	AllowAnonymous bool   `yaml:"allow_anonymous"`
	AnonymousOwner string `yaml:"anonymous_owner"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from environment variables, then overlays the
// YAML file named by TRANSCRIBER_CONFIG when set.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", "file:transcripts.db?_pragma=foreign_keys(1)&_time_format=sqlite"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr:     getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:     getEnv("GRPC_ADDR", ":9090"),
			ListPageSize: getEnvAsInt("LIST_PAGE_SIZE", 20),
		},
		Provider: ProviderConfig{
			APIKey:  getEnv("ASSEMBLYAI_API_KEY", ""),
			BaseURL: getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com/v2"),
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
		},
		Upload: UploadConfig{
			MaxFileSize:    getEnvAsInt64("MAX_FILE_SIZE", constants.DefaultMaxFileSize),
			AllowedFormats: getEnvAsList("ALLOWED_FORMATS", nil),
			TempDir:        getEnv("UPLOAD_TMP_DIR", ""),
		},
		Polling: PollingConfig{
			Interval:   getEnvAsDuration("POLL_INTERVAL", 1500*time.Millisecond),
			MaxRetries: getEnvAsInt("POLL_MAX_RETRIES", 600),
			MaxWait:    getEnvAsDuration("POLL_MAX_WAIT", 15*time.Minute),
		},
		Reaper: ReaperConfig{
			StuckAfter: getEnvAsDuration("STUCK_JOB_AGE", 10*time.Minute),
			PageSize:   getEnvAsInt("REAPER_PAGE_SIZE", 10),
		},
		Reconcile: ReconcileConfig{
			PageSize:    getEnvAsInt("RECONCILE_PAGE_SIZE", 100),
			Concurrency: getEnvAsInt("RECONCILE_CONCURRENCY", 4),
		},
		Tracking: TrackingConfig{
			Workers:   getEnvAsInt("TRACK_WORKERS", 4),
			QueueSize: getEnvAsInt("TRACK_QUEUE_SIZE", 256),
			Timeout:   getEnvAsDuration("TRACK_TIMEOUT", 20*time.Minute),
		},
		Accounts: AccountsConfig{
			AllowAnonymous: getEnvAsBool("ALLOW_ANONYMOUS", true),
			AnonymousOwner: getEnv("ANONYMOUS_OWNER", "anonymous"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file; keys absent from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// AllowedFormatsMap resolves the configured extension allow-list against the known MIME table.
// Unknown extensions are kept with a generic content type so they can still be matched by name.
func (u UploadConfig) AllowedFormatsMap() map[string]string {
	if len(u.AllowedFormats) == 0 {
		out := make(map[string]string, len(constants.AllowedFormats))
		for k, v := range constants.AllowedFormats {
			out[k] = v
		}
		return out
	}
	out := make(map[string]string, len(u.AllowedFormats))
	for _, ext := range u.AllowedFormats {
		ext = constants.NormalizeExt(ext)
		if ext == "" {
			continue
		}
		out[ext] = constants.AllowedFormats[ext]
	}
	return out
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	chk := NewChecker().
		Field("ASSEMBLYAI_API_KEY", c.Provider.APIKey, Required).
		Field("ASSEMBLYAI_BASE_URL", c.Provider.BaseURL, Required).
		Field("DB_URL", c.Database.DSN, Required).
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("MAX_FILE_SIZE", c.Upload.MaxFileSize, Positive).
		Field("POLL_INTERVAL", c.Polling.Interval, Positive).
		Field("POLL_MAX_RETRIES", c.Polling.MaxRetries, Positive).
		Field("POLL_MAX_WAIT", c.Polling.MaxWait, Positive).
		Field("STUCK_JOB_AGE", c.Reaper.StuckAfter, Positive).
		Field("REAPER_PAGE_SIZE", c.Reaper.PageSize, Positive).
		Field("RECONCILE_PAGE_SIZE", c.Reconcile.PageSize, Positive).
		Field("RECONCILE_CONCURRENCY", c.Reconcile.Concurrency, Positive).
		Field("LIST_PAGE_SIZE", c.Server.ListPageSize, Positive).
		Field("LOG_LEVEL", c.Log.Level, OneOf("debug", "info", "warn", "error")).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))
	if c.Accounts.AllowAnonymous {
		chk.Field("ANONYMOUS_OWNER", c.Accounts.AnonymousOwner, Required)
	}
	return chk.Err("CONFIG_ERROR")
}
