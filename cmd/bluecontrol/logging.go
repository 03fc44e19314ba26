package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/config"
)

// loadConfig reads --config and BLUECONTROL_* overrides; --log-level wins over both.
// The logger defaults to panic level, which keeps normal runs silent.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		if _, err := config.ParseLogLevel(logLevel); err != nil {
			return nil, nil, err
		}
		cfg.LogLevel = logLevel
	}

	return cfg, cfg.NewLogger(), nil
}
