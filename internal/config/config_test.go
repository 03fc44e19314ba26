package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "panic", cfg.LogLevel)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, device.ControlServiceUUID, cfg.Profile.ServiceUUID)
	assert.Equal(t, device.ControlCharacteristicUUID, cfg.Profile.CharacteristicUUID)
	assert.Equal(t, "balanced", cfg.Scan.Mode)
	assert.Equal(t, 10*time.Second, cfg.Scan.Duration)
	assert.Equal(t, 2, cfg.Connection.RetryCount)
	assert.Equal(t, 100*time.Millisecond, cfg.Connection.RetryInterval)
	assert.False(t, cfg.Connection.AutoConnect)
	assert.NoError(t, Validate(cfg), "defaults MUST be valid")
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
scan:
  mode: low_latency
  duration: 3s
connection:
  retry_count: 5
  retry_interval: 250ms
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "low_latency", cfg.Scan.Mode)
		assert.Equal(t, 3*time.Second, cfg.Scan.Duration)
		assert.Equal(t, 5, cfg.Connection.RetryCount)
		assert.Equal(t, 250*time.Millisecond, cfg.Connection.RetryInterval)
		assert.Equal(t, device.ControlServiceUUID, cfg.Profile.ServiceUUID, "unset keys MUST keep defaults")
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, "scan:\n  mode: low_power\n")
		t.Setenv("BLUECONTROL_SCAN_MODE", "balanced")
		t.Setenv("BLUECONTROL_RETRY_COUNT", "0")
		t.Setenv("BLUECONTROL_AUTO_CONNECT", "true")
		t.Setenv("BLUECONTROL_CONNECT_TIMEOUT", "2s")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "balanced", cfg.Scan.Mode)
		assert.Equal(t, 0, cfg.Connection.RetryCount)
		assert.True(t, cfg.Connection.AutoConnect)
		assert.Equal(t, 2*time.Second, cfg.Connection.ConnectTimeout)
	})

	t.Run("unparsable env values are reported together", func(t *testing.T) {
		t.Setenv("BLUECONTROL_RETRY_COUNT", "two")
		t.Setenv("BLUECONTROL_SCAN_DURATION", "forever")

		_, err := Load("")
		require.Error(t, err)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve.Errors, 2)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "read config")
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		_, err := Load(writeConfig(t, "scan: [unterminated"))
		assert.ErrorContains(t, err, "parse config")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errors []string
	}{
		{
			name:   "short SIG service uuid is accepted",
			mutate: func(c *Config) { c.Profile.ServiceUUID = "180F" },
		},
		{
			name:   "bad service uuid",
			mutate: func(c *Config) { c.Profile.ServiceUUID = "not-a-uuid" },
			errors: []string{`profile.service_uuid: "not-a-uuid" is not a valid UUID`},
		},
		{
			name:   "misplaced dashes in a long uuid",
			mutate: func(c *Config) { c.Profile.CharacteristicUUID = "a9bf2905ee69-4baa-8960-4358a9e3a558" },
			errors: []string{`profile.characteristic_uuid: "a9bf2905ee69-4baa-8960-4358a9e3a558" is not a valid UUID`},
		},
		{
			name:   "empty characteristic uuid",
			mutate: func(c *Config) { c.Profile.CharacteristicUUID = "" },
			errors: []string{"profile.characteristic_uuid is required"},
		},
		{
			name: "every problem is reported",
			mutate: func(c *Config) {
				c.LogLevel = "loud"
				c.OutputFormat = "csv"
				c.Scan.Mode = "turbo"
				c.Connection.RetryCount = -1
				c.Connection.ConnectTimeout = 0
			},
			errors: []string{
				`log_level: "loud" is not a log level`,
				`output_format: "csv" must be table or json`,
				`scan.mode: "turbo" must be low_power, balanced or low_latency`,
				"connection.retry_count must be >= 0",
				"connection.connect_timeout must be > 0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if len(tt.errors) == 0 {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.errors, ve.Errors)
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Mode = "low_power"
	cfg.Scan.ReportDelay = 50 * time.Millisecond
	cfg.Connection.AutoConnect = true

	settings := cfg.ScanSettings()
	assert.Equal(t, []string{"6f59f19e2f3949de85255d2045f4d999"}, settings.ServiceUUIDs)
	assert.Equal(t, device.ScanModeLowPower, settings.Mode)
	assert.Equal(t, 50*time.Millisecond, settings.ReportDelay)

	opts := cfg.ConnectionOptions()
	assert.Equal(t, 2, opts.RetryCount)
	assert.Equal(t, 100*time.Millisecond, opts.RetryInterval)
	assert.True(t, opts.AutoConnect)
	assert.Equal(t, device.ControlCharacteristicUUID, opts.CharacteristicUUID)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected logrus.Level
	}{
		{name: "debug", level: "debug", expected: logrus.DebugLevel},
		{name: "info", level: "info", expected: logrus.InfoLevel},
		{name: "default is silent", level: "panic", expected: logrus.PanicLevel},
		{name: "invalid falls back to silent", level: "loud", expected: logrus.PanicLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.expected, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bluecontrol.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
