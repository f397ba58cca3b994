package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}

	if cfg.Explorer.Timeout == 0 {
		cfg.Explorer.Timeout = Duration(8 * time.Second)
	}
	if cfg.Explorer.CacheTTL == 0 {
		cfg.Explorer.CacheTTL = Duration(30 * time.Second)
	}
	if cfg.Explorer.ActivityLimit == 0 {
		cfg.Explorer.ActivityLimit = 50
	}

	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = Duration(60 * time.Second)
	}
	t := &cfg.Monitor.Thresholds
	if t.WarnSuccessRate == 0 {
		t.WarnSuccessRate = 90
	}
	if t.CritSuccessRate == 0 {
		t.CritSuccessRate = 80
	}
	if t.DegradedAfter == 0 {
		t.DegradedAfter = Duration(24 * time.Hour)
	}
	if t.UnhealthyAfter == 0 {
		t.UnhealthyAfter = Duration(48 * time.Hour)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
