package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"reservo/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Policy     PolicyConfig     `yaml:"policy"`
	Events     EventsConfig     `yaml:"events"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig holds the allocation parameters.
type BookingConfig struct {
	TimeZone             string        `yaml:"time_zone"`
	HoldTTL              time.Duration `yaml:"hold_ttl"`
	HorizonDays          int           `yaml:"horizon_days"`
	MaxCartQuantity      int64         `yaml:"max_cart_quantity"`
	HoldSweepInterval    time.Duration `yaml:"hold_sweep_interval"`
	ReminderStartLead    time.Duration `yaml:"reminder_start_lead"`
	ReminderEndLead      time.Duration `yaml:"reminder_end_lead"`
	ReminderPollInterval time.Duration `yaml:"reminder_poll_interval"`
	ReminderMaxAttempts  int           `yaml:"reminder_max_attempts"`
}

// Location resolves the configured time zone.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", b.TimeZone, err)
	}
	return loc, nil
}

type PolicyConfig struct {
	Blacklist        []int64 `yaml:"blacklist"`
	NoShowThreshold  int     `yaml:"no_show_threshold"`
	NoShowWindowDays int     `yaml:"no_show_window_days"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether events are forwarded to kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Load reads the YAML file at configPath, expanding ${VAR} references from the
// environment and an optional .env file, then applies defaults and validates.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, err := c.Booking.Location(); err != nil {
		return err
	}
	if c.Booking.MaxCartQuantity != models.MaxCartQuantity {
		return fmt.Errorf("booking.max_cart_quantity is fixed at %d", models.MaxCartQuantity)
	}
	if c.Booking.HoldTTL <= 0 {
		return errors.New("booking.hold_ttl must be positive")
	}
	if c.Booking.HorizonDays <= 0 {
		return errors.New("booking.horizon_days must be positive")
	}
	if c.Policy.NoShowThreshold < 0 || c.Policy.NoShowWindowDays < 0 {
		return errors.New("policy thresholds must not be negative")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth is enabled but no api_keys are configured")
	}
	if c.API.GRPC.TLS.Enabled && (c.API.GRPC.TLS.CertFile == "" || c.API.GRPC.TLS.KeyFile == "") {
		return errors.New("api.grpc.tls requires cert_file and key_file")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "reservo"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.CartTTL == 0 {
		c.Redis.CartTTL = models.DefaultCartTTL
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}

	b := &c.Booking
	if b.HoldTTL == 0 {
		b.HoldTTL = models.DefaultHoldTTL
	}
	if b.HorizonDays == 0 {
		b.HorizonDays = models.DefaultHorizonDays
	}
	if b.MaxCartQuantity == 0 {
		b.MaxCartQuantity = models.MaxCartQuantity
	}
	if b.HoldSweepInterval == 0 {
		b.HoldSweepInterval = models.DefaultHoldSweepInterval
	}
	if b.ReminderStartLead == 0 {
		b.ReminderStartLead = models.DefaultReminderStartLead
	}
	if b.ReminderEndLead == 0 {
		b.ReminderEndLead = models.DefaultReminderEndLead
	}
	if b.ReminderPollInterval == 0 {
		b.ReminderPollInterval = 30 * time.Second
	}
	if b.ReminderMaxAttempts == 0 {
		b.ReminderMaxAttempts = 5
	}

	if c.Policy.NoShowThreshold == 0 {
		c.Policy.NoShowThreshold = models.DefaultNoShowThreshold
	}
	if c.Policy.NoShowWindowDays == 0 {
		c.Policy.NoShowWindowDays = models.DefaultNoShowWindowDays
	}
}
