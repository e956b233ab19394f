// Package config defines all configuration structures for the e-Defter
// tracker.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

// DatabaseConfig holds the SQLite store parameters.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// ArchiveConfig holds the archive monitor parameters.  An empty Root disables
// scanning and watching.
type ArchiveConfig struct {
	Root     string        `mapstructure:"root"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// NotificationConfig holds reminder digest parameters.
type NotificationConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	AlertTimes []string `mapstructure:"alert_times"` // "HH:MM", local time
	Thresholds []int    `mapstructure:"thresholds"`
	Recipients []string `mapstructure:"recipients"`
	From       string   `mapstructure:"from"`
	Subject    string   `mapstructure:"subject"`
}

// SMTPConfig holds mail transport parameters.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CalendarConfig extends the built-in holiday calendar.
type CalendarConfig struct {
	ExtraHolidays []string `mapstructure:"extra_holidays"` // "YYYY-MM-DD"
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds alert event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	CreateTopic  bool          `mapstructure:"create_topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MinIOConfig holds S3-compatible object-storage parameters for backups.
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// BackupConfig holds local backup parameters.
type BackupConfig struct {
	Dir     string `mapstructure:"dir"`
	Retain  int    `mapstructure:"retain"`
	DailyAt string `mapstructure:"daily_at"` // "HH:MM", empty disables the worker job
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Port      int    `mapstructure:"port"`
	Path      string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.  Every infrastructure component
// and application service reads its settings from the relevant sub-struct.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Notification NotificationConfig `mapstructure:"notification"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Calendar     CalendarConfig     `mapstructure:"calendar"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	Backup       BackupConfig       `mapstructure:"backup"`
	Server       ServerConfig       `mapstructure:"server"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Log          logging.LogConfig  `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived values
// ─────────────────────────────────────────────────────────────────────────────

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("config: %q is not HH:MM", s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("config: %q is not HH:MM", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// Matches reports whether t falls in this clock minute.
func (c ClockTime) Matches(t time.Time) bool {
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Location loads app.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// AlertClockTimes parses notification.alert_times.
func (c *Config) AlertClockTimes() ([]ClockTime, error) {
	out := make([]ClockTime, 0, len(c.Notification.AlertTimes))
	for _, s := range c.Notification.AlertTimes {
		ct, err := ParseClockTime(s)
		if err != nil {
			return nil, fmt.Errorf("config: notification.alert_times: %w", err)
		}
		out = append(out, ct)
	}
	return out, nil
}

// HolidayDates parses calendar.extra_holidays.
func (c *Config) HolidayDates() ([]deadline.Date, error) {
	out := make([]deadline.Date, 0, len(c.Calendar.ExtraHolidays))
	for _, s := range c.Calendar.ExtraHolidays {
		d, err := deadline.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("config: calendar.extra_holidays: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// SMTPAddr returns host:port of the mail server.
func (c *Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTP.Host, c.SMTP.Port)
}

// ServerAddr returns host:port of the HTTP API.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// App
	if _, err := c.Location(); err != nil {
		return err
	}

	// Database
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}

	// Notification
	if _, err := c.AlertClockTimes(); err != nil {
		return err
	}
	for _, th := range c.Notification.Thresholds {
		if th < 0 {
			return fmt.Errorf("config: notification.thresholds must be ≥ 0, got %d", th)
		}
	}
	if c.Notification.Enabled {
		if len(c.Notification.Recipients) == 0 {
			return fmt.Errorf("config: notification.recipients is required when notifications are enabled")
		}
		if c.Notification.From == "" {
			return fmt.Errorf("config: notification.from is required when notifications are enabled")
		}
		if c.SMTP.Host == "" {
			return fmt.Errorf("config: smtp.host is required when notifications are enabled")
		}
		if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
			return fmt.Errorf("config: smtp.port %d is out of range [1, 65535]", c.SMTP.Port)
		}
	}

	// Calendar
	if _, err := c.HolidayDates(); err != nil {
		return err
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required when kafka is enabled")
		}
	}

	// MinIO
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required when minio is enabled")
		}
	}

	// Backup
	if c.Backup.Dir == "" {
		return fmt.Errorf("config: backup.dir is required")
	}
	if c.Backup.Retain < 1 {
		return fmt.Errorf("config: backup.retain must be ≥ 1, got %d", c.Backup.Retain)
	}
	if c.Backup.DailyAt != "" {
		if _, err := ParseClockTime(c.Backup.DailyAt); err != nil {
			return fmt.Errorf("config: backup.daily_at: %w", err)
		}
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Metrics
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("config: metrics.port %d is out of range [1, 65535]", c.Metrics.Port)
	}

	// Log
	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
