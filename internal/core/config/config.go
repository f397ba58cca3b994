package config

import (
	"fmt"
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	redisclient "github.com/lamassu-labs/sentinel/internal/infra/redis"
	"github.com/lamassu-labs/sentinel/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Programs []ProgramConfig    `yaml:"programs"`
	Explorer ExplorerConfig     `yaml:"explorer"`
	Monitor  MonitorConfig      `yaml:"monitor"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ProgramConfig identifies one monitored program.
type ProgramConfig struct {
	ID   domain.ProgramID `yaml:"id"`
	Name string           `yaml:"name"`
}

// ExplorerConfig holds settings for the explorer API adapter.
type ExplorerConfig struct {
	Endpoints     []EndpointConfig `yaml:"endpoints"`
	Timeout       Duration         `yaml:"timeout"`        // per HTTP call
	CacheTTL      Duration         `yaml:"cache_ttl"`      // per-program sample cache
	ActivityLimit int              `yaml:"activity_limit"` // page size for recent activity
}

// EndpointConfig holds settings for one candidate explorer endpoint.
// Endpoints are tried in the order they appear.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// MonitorConfig holds poll loop and health evaluation settings.
type MonitorConfig struct {
	PollInterval    Duration        `yaml:"poll_interval"`
	RetentionPeriod Duration        `yaml:"retention_period"` // archive retention, 0 = infinite
	Thresholds      ThresholdConfig `yaml:"thresholds"`
}

// ThresholdConfig holds the health classification cutoffs.
type ThresholdConfig struct {
	WarnSuccessRate float64  `yaml:"warn_success_rate"` // percent, below => warning
	CritSuccessRate float64  `yaml:"crit_success_rate"` // percent, below => critical
	DegradedAfter   Duration `yaml:"degraded_after"`    // inactivity before degraded
	UnhealthyAfter  Duration `yaml:"unhealthy_after"`   // inactivity before unhealthy
}

// ProgramList converts the configured programs to domain values,
// defaulting the display name to the id.
func (c *AppConfig) ProgramList() []domain.Program {
	out := make([]domain.Program, 0, len(c.Programs))
	for _, p := range c.Programs {
		name := p.Name
		if name == "" {
			name = string(p.ID)
		}
		out = append(out, domain.Program{ID: p.ID, Name: name})
	}
	return out
}

// Validate checks the loaded configuration for the errors that must stop
// startup: an empty program set, no candidate endpoints, or cutoffs that
// contradict each other.
func (c *AppConfig) Validate() error {
	if len(c.Programs) == 0 {
		return fmt.Errorf("no programs configured")
	}
	seen := make(map[domain.ProgramID]bool, len(c.Programs))
	for i, p := range c.Programs {
		if p.ID == "" {
			return fmt.Errorf("programs[%d]: missing id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("programs[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}

	if len(c.Explorer.Endpoints) == 0 {
		return fmt.Errorf("no explorer endpoints configured")
	}
	for i, e := range c.Explorer.Endpoints {
		if e.URL == "" {
			return fmt.Errorf("explorer.endpoints[%d]: missing url", i)
		}
	}
	if c.Explorer.Timeout <= 0 {
		return fmt.Errorf("explorer.timeout must be positive")
	}
	if c.Explorer.ActivityLimit <= 0 {
		return fmt.Errorf("explorer.activity_limit must be positive")
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	t := c.Monitor.Thresholds
	if t.WarnSuccessRate < 0 || t.WarnSuccessRate > 100 {
		return fmt.Errorf("thresholds.warn_success_rate %.1f outside [0,100]", t.WarnSuccessRate)
	}
	if t.CritSuccessRate < 0 || t.CritSuccessRate > t.WarnSuccessRate {
		return fmt.Errorf(
			"thresholds.crit_success_rate %.1f must be within [0, warn_success_rate]",
			t.CritSuccessRate,
		)
	}
	if t.DegradedAfter <= 0 || t.UnhealthyAfter < t.DegradedAfter {
		return fmt.Errorf("thresholds: unhealthy_after must be >= degraded_after > 0")
	}

	return nil
}

// Duration is a time.Duration that unmarshals from the human-readable
// YAML form ("8s", "24h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
