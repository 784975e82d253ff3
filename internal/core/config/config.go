package config

import (
	"time"

	"github.com/vietddude/errwatch/internal/infra/bus"
	redisclient "github.com/vietddude/errwatch/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Storage  StorageConfig      `yaml:"storage"`
	Redis    redisclient.Config `yaml:"redis"`
	Detector DetectorConfig     `yaml:"detector"`
	Health   HealthConfig       `yaml:"health"`
	Recovery RecoveryConfig     `yaml:"recovery"`
	Notify   bus.Config         `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" envconfig:"PORT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"` // debug, info, warn, error
}

// StorageConfig selects the backend for every bounded collection.
type StorageConfig struct {
	Driver       string `yaml:"driver"        envconfig:"DRIVER"` // memory, postgres, pgx, sqlite, redis
	URL          string `yaml:"url"           envconfig:"URL"`
	MaxConns     int    `yaml:"max_conns"     envconfig:"MAX_CONNS"`
	MinConns     int    `yaml:"min_conns"     envconfig:"MIN_CONNS"`
	ErrorLimit   int    `yaml:"error_limit"   envconfig:"ERROR_LIMIT"`
	MetricsLimit int    `yaml:"metrics_limit" envconfig:"METRICS_LIMIT"`
	HealthLimit  int    `yaml:"health_limit"  envconfig:"HEALTH_LIMIT"`
}

// DetectorConfig holds scanner settings.
type DetectorConfig struct {
	Interval         time.Duration `yaml:"interval"           envconfig:"INTERVAL"`
	WorkDir          string        `yaml:"work_dir"           envconfig:"WORK_DIR"`
	Roots            []string      `yaml:"roots"              envconfig:"ROOTS"`
	Extensions       []string      `yaml:"extensions"         envconfig:"EXTENSIONS"`
	ExcludeDirs      []string      `yaml:"exclude_dirs"       envconfig:"EXCLUDE_DIRS"`
	TypeCheckCommand []string      `yaml:"typecheck_command"  envconfig:"TYPECHECK_COMMAND"`
	LintCommand      []string      `yaml:"lint_command"       envconfig:"LINT_COMMAND"`
	CriticalCodes    []string      `yaml:"critical_codes"     envconfig:"CRITICAL_CODES"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"       envconfig:"TOOL_TIMEOUT"`
	LogicThreshold   int           `yaml:"logic_threshold"    envconfig:"LOGIC_THRESHOLD"`
}

// HealthConfig holds agent health settings.
type HealthConfig struct {
	Agents            []string      `yaml:"agents"               envconfig:"AGENTS"`
	SweepInterval     time.Duration `yaml:"sweep_interval"       envconfig:"SWEEP_INTERVAL"`
	MaxErrorRate      float64       `yaml:"max_error_rate"       envconfig:"MAX_ERROR_RATE"`
	MaxResponseTimeMs float64       `yaml:"max_response_time_ms" envconfig:"MAX_RESPONSE_TIME_MS"`
	MaxInactivity     time.Duration `yaml:"max_inactivity"       envconfig:"MAX_INACTIVITY"`
}

// RecoveryConfig holds recovery engine settings.
type RecoveryConfig struct {
	TuneInterval    time.Duration `yaml:"tune_interval"     envconfig:"TUNE_INTERVAL"`
	TuneWindow      time.Duration `yaml:"tune_window"       envconfig:"TUNE_WINDOW"`
	MinOccurrences  int           `yaml:"min_occurrences"   envconfig:"MIN_OCCURRENCES"`
	TunedMaxRetries int           `yaml:"tuned_max_retries" envconfig:"TUNED_MAX_RETRIES"`
	TunedDelay      time.Duration `yaml:"tuned_delay"       envconfig:"TUNED_DELAY"`
	CacheDir        string        `yaml:"cache_dir"         envconfig:"CACHE_DIR"`
}
