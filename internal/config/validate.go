package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/bluecontrol/internal/device"
)

// ValidationError accumulates config validation errors
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and returns a *ValidationError listing every problem found
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		ve.Add("log_level: %q is not a log level", cfg.LogLevel)
	}
	switch cfg.OutputFormat {
	case "table", "json":
	default:
		ve.Add("output_format: %q must be table or json", cfg.OutputFormat)
	}

	validateUUID(ve, "profile.service_uuid", cfg.Profile.ServiceUUID)
	validateUUID(ve, "profile.characteristic_uuid", cfg.Profile.CharacteristicUUID)

	if _, ok := device.ParseScanMode(cfg.Scan.Mode); !ok {
		ve.Add("scan.mode: %q must be low_power, balanced or low_latency", cfg.Scan.Mode)
	}
	if cfg.Scan.ReportDelay < 0 {
		ve.Add("scan.report_delay must be >= 0")
	}
	if cfg.Scan.Duration < 0 {
		ve.Add("scan.duration must be >= 0")
	}

	if cfg.Connection.RetryCount < 0 {
		ve.Add("connection.retry_count must be >= 0")
	}
	if cfg.Connection.RetryInterval < 0 {
		ve.Add("connection.retry_interval must be >= 0")
	}
	if cfg.Connection.ConnectTimeout <= 0 {
		ve.Add("connection.connect_timeout must be > 0")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// validateUUID accepts full 128-bit UUIDs and 16/32-bit SIG short forms
func validateUUID(ve *ValidationError, field, value string) {
	if value == "" {
		ve.Add("%s is required", field)
		return
	}
	if _, err := device.ValidateUUID(value); err != nil {
		ve.Add("%s: %q is not a valid UUID", field, value)
		return
	}
	// long forms must also follow the canonical 8-4-4-4-12 layout
	if digits := strings.TrimPrefix(strings.ToLower(value), "0x"); len(digits) > 8 {
		if _, err := uuid.Parse(value); err != nil {
			ve.Add("%s: %q is not a valid UUID", field, value)
		}
	}
}
