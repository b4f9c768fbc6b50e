package config

import (
	"fmt"
	"strings"
	"time"

	"groupnotify/internal/domain/dispatch"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Launcher  LauncherConfig  `mapstructure:"launcher"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Secret    SecretConfig    `mapstructure:"secret"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Hooks     HooksConfig     `mapstructure:"hooks"`
	Email     EmailConfig     `mapstructure:"email"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// SessionPrefix is the key prefix of host CMS sessions stored in Redis.
	SessionPrefix string `mapstructure:"session_prefix"`
}

// StoreConfig selects and configures the host CMS directory and delivery log.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // "supabase" or "sqlite"
	SupabaseURL string `mapstructure:"supabase_url"`
	ServiceKey  string `mapstructure:"service_key"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
	// TaskTimeoutSec bounds one dispatch run. Large fan-outs run long.
	TaskTimeoutSec int `mapstructure:"task_timeout_sec"`
}

// LauncherConfig selects how background workers are started.
type LauncherConfig struct {
	Mode         string `mapstructure:"mode"` // "queue" or "process"
	WorkerBinary string `mapstructure:"worker_binary"`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	MemoryLimit string `mapstructure:"memory_limit"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// SecretConfig holds the installation facts the worker secret derives from.
type SecretConfig struct {
	PluginGUID  int64  `mapstructure:"plugin_guid"`
	SiteSecret  string `mapstructure:"site_secret"`
	InstalledAt int64  `mapstructure:"installed_at"`
}

// RegistryConfig lists the entity types and annotation kinds that notify.
type RegistryConfig struct {
	Entities    []dispatch.RegisteredType `mapstructure:"entities"`
	Annotations []string                  `mapstructure:"annotations"`
}

// DispatchConfig holds fan-out settings.
type DispatchConfig struct {
	Methods []string `mapstructure:"methods"`
}

// HooksConfig configures the remote extension hook endpoint.
type HooksConfig struct {
	URL        string `mapstructure:"url"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// EmailConfig holds email provider settings.
type EmailConfig struct {
	Provider    string     `mapstructure:"provider"` // "resend" or "smtp"
	APIKey      string     `mapstructure:"api_key"`
	FromAddress string     `mapstructure:"from_address"`
	FromName    string     `mapstructure:"from_name"`
	SMTP        SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Encryption string `mapstructure:"encryption"` // "none", "starttls", "ssl_tls"
}

// SecretSource converts the secret settings for dispatch.NewSecret.
func (c SecretConfig) SecretSource() dispatch.SecretSource {
	return dispatch.SecretSource{
		PluginGUID:  dispatch.GUID(c.PluginGUID),
		SiteSecret:  c.SiteSecret,
		InstalledAt: c.InstalledAt,
	}
}

// TaskTimeout returns the dispatch task timeout.
func (c QueueConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSec) * time.Second
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the GROUPNOTIFY_ prefix and underscore separators.
// Example: GROUPNOTIFY_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variable settings
	v.SetEnvPrefix("GROUPNOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional, env vars can provide everything)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Comma-separated lists from env vars
	cfg.Auth.APIKeys = splitList(v, "auth.api_keys", cfg.Auth.APIKeys)
	cfg.Dispatch.Methods = splitList(v, "dispatch.methods", cfg.Dispatch.Methods)
	cfg.Registry.Annotations = splitList(v, "registry.annotations", cfg.Registry.Annotations)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_prefix", "session:")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "groupnotify.db")
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 3)
	v.SetDefault("queue.task_timeout_sec", 6*3600)
	v.SetDefault("launcher.mode", "queue")
	v.SetDefault("launcher.worker_binary", "worker")
	v.SetDefault("worker.memory_limit", "256M")
	v.SetDefault("worker.metrics_port", 9091)
	v.SetDefault("registry.annotations", dispatch.DefaultAnnotationKinds)
	v.SetDefault("dispatch.methods", []string{"email"})
	v.SetDefault("hooks.timeout_sec", 5)
	v.SetDefault("email.provider", "resend")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.encryption", "starttls")
}

// splitList accepts either a YAML list or a comma-separated env value.
func splitList(v *viper.Viper, key string, current []string) []string {
	raw := v.GetString(key)
	if raw == "" || !strings.Contains(raw, ",") {
		return current
	}
	items := strings.Split(raw, ",")
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "supabase":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Launcher.Mode {
	case "queue", "process":
	default:
		return fmt.Errorf("unknown launcher mode %q", c.Launcher.Mode)
	}
	if c.Secret.SiteSecret == "" {
		return fmt.Errorf("secret.site_secret is required")
	}
	return nil
}
