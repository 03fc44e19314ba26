package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/connection"
	"github.com/srg/bluecontrol/internal/device"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "BLUECONTROL_"

// Config holds application configuration
type Config struct {
	LogLevel     string `yaml:"log_level" default:"panic"`
	OutputFormat string `yaml:"output_format" default:"table"` // table, json

	Profile    ProfileConfig    `yaml:"profile"`
	Scan       ScanConfig       `yaml:"scan"`
	Connection ConnectionConfig `yaml:"connection"`
}

// ProfileConfig names the GATT service and characteristic a controllable peripheral exposes
type ProfileConfig struct {
	ServiceUUID        string `yaml:"service_uuid" default:"6f59f19e-2f39-49de-8525-5d2045f4d999"`
	CharacteristicUUID string `yaml:"characteristic_uuid" default:"a9bf2905-ee69-4baa-8960-4358a9e3a558"`
}

// ScanConfig configures discovery
type ScanConfig struct {
	Mode        string        `yaml:"mode" default:"balanced"` // low_power, balanced, low_latency
	ReportDelay time.Duration `yaml:"report_delay" default:"0s"`
	Duration    time.Duration `yaml:"duration" default:"10s"`
}

// ConnectionConfig configures connection requests
type ConnectionConfig struct {
	RetryCount     int           `yaml:"retry_count" default:"2"`
	RetryInterval  time.Duration `yaml:"retry_interval" default:"100ms"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	AutoConnect    bool          `yaml:"auto_connect" default:"false"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads an optional YAML config file, applies BLUECONTROL_* env overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps BLUECONTROL_* env vars to config fields.
// Unparsable values are reported as a *ValidationError.
func ApplyEnvOverrides(cfg *Config) error {
	ve := &ValidationError{}

	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = v
	}
	if v := os.Getenv(EnvPrefix + "SERVICE_UUID"); v != "" {
		cfg.Profile.ServiceUUID = v
	}
	if v := os.Getenv(EnvPrefix + "CHARACTERISTIC_UUID"); v != "" {
		cfg.Profile.CharacteristicUUID = v
	}
	if v := os.Getenv(EnvPrefix + "SCAN_MODE"); v != "" {
		cfg.Scan.Mode = v
	}
	envDuration(ve, "SCAN_DURATION", &cfg.Scan.Duration)
	envDuration(ve, "SCAN_REPORT_DELAY", &cfg.Scan.ReportDelay)
	envDuration(ve, "RETRY_INTERVAL", &cfg.Connection.RetryInterval)
	envDuration(ve, "CONNECT_TIMEOUT", &cfg.Connection.ConnectTimeout)
	if v := os.Getenv(EnvPrefix + "RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ve.Add("%sRETRY_COUNT: %q is not a number", EnvPrefix, v)
		} else {
			cfg.Connection.RetryCount = n
		}
	}
	if v := os.Getenv(EnvPrefix + "AUTO_CONNECT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			ve.Add("%sAUTO_CONNECT: %q is not a boolean", EnvPrefix, v)
		} else {
			cfg.Connection.AutoConnect = b
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func envDuration(ve *ValidationError, name string, dst *time.Duration) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		ve.Add("%s%s: %q is not a duration", EnvPrefix, name, v)
		return
	}
	*dst = d
}

// ParseLogLevel parses a logrus level name
func ParseLogLevel(level string) (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = logrus.PanicLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ScanSettings returns the scanner settings described by the config
func (c *Config) ScanSettings() device.ScanSettings {
	mode, _ := device.ParseScanMode(c.Scan.Mode)
	return device.ScanSettings{
		ServiceUUIDs: []string{device.NormalizeUUID(c.Profile.ServiceUUID)},
		Mode:         mode,
		ReportDelay:  c.Scan.ReportDelay,
	}
}

// ConnectionOptions returns the connection manager options described by the config
func (c *Config) ConnectionOptions() *connection.Options {
	return &connection.Options{
		RetryCount:         c.Connection.RetryCount,
		RetryInterval:      c.Connection.RetryInterval,
		ConnectTimeout:     c.Connection.ConnectTimeout,
		AutoConnect:        c.Connection.AutoConnect,
		ServiceUUID:        c.Profile.ServiceUUID,
		CharacteristicUUID: c.Profile.CharacteristicUUID,
	}
}
