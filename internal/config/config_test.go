package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := newValidConfig()

	assert.Equal(t, DefaultTimezone, cfg.App.Timezone)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, []int{7, 3, 1, 0}, cfg.Notification.Thresholds)
	assert.Equal(t, []string{"06:00", "18:00"}, cfg.Notification.AlertTimes)
	require.NoError(t, cfg.Validate())
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Backup.Retain = 2
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Backup.Retain)
}

func TestApplyDefaults_DoesNotAliasPackageSlices(t *testing.T) {
	cfg := newValidConfig()
	cfg.Notification.Thresholds[0] = 99
	assert.Equal(t, 7, DefaultThresholds[0])
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad timezone", func(c *Config) { c.App.Timezone = "Mars/Olympus" }, "app.timezone"},
		{"no database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad alert time", func(c *Config) { c.Notification.AlertTimes = []string{"25:00"} }, "alert_times"},
		{"negative threshold", func(c *Config) { c.Notification.Thresholds = []int{-1} }, "thresholds"},
		{"notify without smtp", func(c *Config) {
			c.Notification.Enabled = true
			c.Notification.Recipients = []string{"a@b.c"}
			c.Notification.From = "x@b.c"
		}, "smtp.host"},
		{"bad holiday", func(c *Config) { c.Calendar.ExtraHolidays = []string{"2025-02-30"} }, "extra_holidays"},
		{"kafka without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, "kafka.topic"},
		{"minio without bucket", func(c *Config) { c.MinIO.Enabled = true; c.MinIO.Bucket = "" }, "minio.bucket"},
		{"retain zero", func(c *Config) { c.Backup.Retain = 0 }, "backup.retain"},
		{"bad daily_at", func(c *Config) { c.Backup.DailyAt = "noon" }, "backup.daily_at"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "text" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseClockTime(t *testing.T) {
	ct, err := ParseClockTime("06:00")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 6}, ct)
	assert.Equal(t, "06:00", ct.String())

	at := time.Date(2025, 6, 9, 6, 0, 42, 0, time.UTC)
	assert.True(t, ct.Matches(at))
	assert.False(t, ct.Matches(at.Add(time.Minute)))

	for _, bad := range []string{"", "6", "24:00", "12:60", "ab:cd", "1:2:3"} {
		_, err := ParseClockTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestConfig_Addresses(t *testing.T) {
	cfg := newValidConfig()
	cfg.SMTP.Host = "smtp.example.com.tr"
	assert.Equal(t, "smtp.example.com.tr:587", cfg.SMTPAddr())
	assert.Equal(t, "127.0.0.1:8080", cfg.ServerAddr())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Istanbul", loc.String())
}
