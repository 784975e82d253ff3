package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envPrefix = "ERRWATCH"

var (
	// ErrUnknownStorageDriver is returned for an unsupported storage.driver.
	ErrUnknownStorageDriver = errors.New("unknown storage driver")
	// ErrMissingStorageURL is returned when a persistent driver has no URL.
	ErrMissingStorageURL = errors.New("storage url is required")
)

var storageDrivers = []string{"memory", "postgres", "pgx", "sqlite", "redis"}

// Load reads configuration from a YAML file. An empty path yields the
// defaults with environment overrides applied.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	sections := []struct {
		prefix string
		spec   any
	}{
		{envPrefix + "_SERVER", &cfg.Server},
		{envPrefix + "_LOG", &cfg.Logging},
		{envPrefix + "_STORAGE", &cfg.Storage},
		{envPrefix + "_REDIS", &cfg.Redis},
		{envPrefix + "_DETECTOR", &cfg.Detector},
		{envPrefix + "_HEALTH", &cfg.Health},
		{envPrefix + "_RECOVERY", &cfg.Recovery},
		{envPrefix + "_NOTIFY", &cfg.Notify},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.spec); err != nil {
			return fmt.Errorf("failed to apply %s overrides: %w", s.prefix, err)
		}
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.ErrorLimit == 0 {
		cfg.Storage.ErrorLimit = 1000
	}
	if cfg.Storage.MetricsLimit == 0 {
		cfg.Storage.MetricsLimit = 1000
	}
	if cfg.Storage.HealthLimit == 0 {
		cfg.Storage.HealthLimit = 100
	}

	d := &cfg.Detector
	if d.Interval == 0 {
		d.Interval = 30 * time.Second
	}
	if d.WorkDir == "" {
		d.WorkDir = "."
	}
	if len(d.Roots) == 0 {
		d.Roots = []string{"src"}
	}
	if len(d.Extensions) == 0 {
		d.Extensions = []string{".ts", ".tsx", ".js", ".jsx"}
	}
	if len(d.ExcludeDirs) == 0 {
		d.ExcludeDirs = []string{"node_modules", ".git", "dist", "build"}
	}
	if len(d.CriticalCodes) == 0 {
		d.CriticalCodes = []string{"TS2304", "TS2307", "TS2322", "TS2345"}
	}
	if d.ToolTimeout == 0 {
		d.ToolTimeout = 2 * time.Minute
	}
	if d.LogicThreshold == 0 {
		d.LogicThreshold = 10
	}

	h := &cfg.Health
	if h.SweepInterval == 0 {
		h.SweepInterval = time.Minute
	}
	if h.MaxErrorRate == 0 {
		h.MaxErrorRate = 0.10
	}
	if h.MaxResponseTimeMs == 0 {
		h.MaxResponseTimeMs = 30000
	}
	if h.MaxInactivity == 0 {
		h.MaxInactivity = 24 * time.Hour
	}

	r := &cfg.Recovery
	if r.TuneInterval == 0 {
		r.TuneInterval = time.Hour
	}
	if r.TuneWindow == 0 {
		r.TuneWindow = 7 * 24 * time.Hour
	}
	if r.MinOccurrences == 0 {
		r.MinOccurrences = 5
	}
	if r.TunedMaxRetries == 0 {
		r.TunedMaxRetries = 2
	}
	if r.TunedDelay == 0 {
		r.TunedDelay = 5 * time.Second
	}
}

// Validate checks cross-field constraints.
func (c *AppConfig) Validate() error {
	if !slices.Contains(storageDrivers, c.Storage.Driver) {
		return fmt.Errorf("%w: %s", ErrUnknownStorageDriver, c.Storage.Driver)
	}
	switch c.Storage.Driver {
	case "postgres", "pgx", "sqlite":
		if c.Storage.URL == "" {
			return fmt.Errorf("%w for driver %s", ErrMissingStorageURL, c.Storage.Driver)
		}
	case "redis":
		if c.Storage.URL == "" && c.Redis.URL == "" {
			return fmt.Errorf("%w for driver redis", ErrMissingStorageURL)
		}
	}
	if c.Health.MaxErrorRate < 0 || c.Health.MaxErrorRate > 1 {
		return fmt.Errorf("health.max_error_rate must be within [0,1], got %v", c.Health.MaxErrorRate)
	}
	return nil
}
