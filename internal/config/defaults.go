package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultAppName  = "edefter-tracker"
	DefaultTimezone = "Europe/Istanbul"

	DefaultDBPath      = "data/edefter.db"
	DefaultBusyTimeout = 5 * time.Second

	DefaultArchiveDebounce = 2 * time.Second

	DefaultNotificationSubject = "e-Defter yükleme hatırlatması"
	DefaultSMTPPort            = 587
	DefaultSMTPTimeout         = 30 * time.Second

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisKeyPrefix = "edefter:"
	DefaultRedisTTL       = 5 * time.Minute

	DefaultKafkaBroker = "localhost:9092"
	DefaultKafkaTopic  = "edefter.deadline.alerts"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "edefter-backups"

	DefaultBackupDir    = "data/backups"
	DefaultBackupRetain = 10

	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultMetricsNamespace = "edefter"
	DefaultMetricsPort      = 9091
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultAlertTimes are the wall-clock times at which reminder digests run.
var DefaultAlertTimes = []string{"06:00", "18:00"}

// DefaultThresholds are the remaining-day values that trigger a reminder.
var DefaultThresholds = []int{7, 3, 1, 0}

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the default.  Fields
// that have already been set by the caller are left unchanged so that explicit
// configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── App ───────────────────────────────────────────────────────────────────
	if cfg.App.Name == "" {
		cfg.App.Name = DefaultAppName
	}
	if cfg.App.Timezone == "" {
		cfg.App.Timezone = DefaultTimezone
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDBPath
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = DefaultBusyTimeout
	}

	// ── Archive ───────────────────────────────────────────────────────────────
	if cfg.Archive.Debounce == 0 {
		cfg.Archive.Debounce = DefaultArchiveDebounce
	}

	// ── Notification ──────────────────────────────────────────────────────────
	if len(cfg.Notification.AlertTimes) == 0 {
		cfg.Notification.AlertTimes = append([]string(nil), DefaultAlertTimes...)
	}
	if len(cfg.Notification.Thresholds) == 0 {
		cfg.Notification.Thresholds = append([]int(nil), DefaultThresholds...)
	}
	if cfg.Notification.Subject == "" {
		cfg.Notification.Subject = DefaultNotificationSubject
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = DefaultSMTPPort
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = DefaultSMTPTimeout
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Backup ────────────────────────────────────────────────────────────────
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = DefaultBackupDir
	}
	if cfg.Backup.Retain == 0 {
		cfg.Backup.Retain = DefaultBackupRetain
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// registerDefaults seeds v with every known key so that EDEFTER_* variables
// are picked up by Unmarshal even when no config file mentions the key.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("app.name", DefaultAppName)
	v.SetDefault("app.timezone", DefaultTimezone)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.busy_timeout", DefaultBusyTimeout)

	v.SetDefault("archive.root", "")
	v.SetDefault("archive.debounce", DefaultArchiveDebounce)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.alert_times", DefaultAlertTimes)
	v.SetDefault("notification.thresholds", DefaultThresholds)
	v.SetDefault("notification.recipients", []string{})
	v.SetDefault("notification.from", "")
	v.SetDefault("notification.subject", DefaultNotificationSubject)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.use_tls", false)
	v.SetDefault("smtp.timeout", DefaultSMTPTimeout)

	v.SetDefault("calendar.extra_holidays", []string{})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)
	v.SetDefault("redis.default_ttl", DefaultRedisTTL)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.topic", DefaultKafkaTopic)
	v.SetDefault("kafka.create_topic", false)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", DefaultMinIOBucket)
	v.SetDefault("minio.prefix", "")

	v.SetDefault("backup.dir", DefaultBackupDir)
	v.SetDefault("backup.retain", DefaultBackupRetain)
	v.SetDefault("backup.daily_at", "")

	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.mode", DefaultServerMode)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.port", DefaultMetricsPort)
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}
