package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds configuration for the admin API.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// LogConfig controls optional rotated file output next to stdout.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// PoolConfig holds the account pool tunables.
type PoolConfig struct {
	ErrorThreshold int           `yaml:"error_threshold"`
	RateWindow     time.Duration `yaml:"rate_window"`
}

// ProviderConfig overrides the built-in defaults of one provider.
// Nil pointers keep the defaults.
type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Priority      *int          `yaml:"priority"`
	RateLimit     *int          `yaml:"rate_limit"`
	TotalCapacity *float64      `yaml:"total_capacity"`
	TrialDays     *int          `yaml:"trial_days"`
	MonthlyLimit  *int64        `yaml:"monthly_limit"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollAttempts  int           `yaml:"poll_attempts"`
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	RevivalSpec        string `yaml:"revival_spec"`
	ReportSpec         string `yaml:"report_spec"`
	RevivalConcurrency int    `yaml:"revival_concurrency"`
}

// HTTPConfig holds the outbound HTTP client settings.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds the configuration for the ledgerpool service.
type Config struct {
	Database  DatabaseConfig            `yaml:"database"`
	Admin     AdminConfig               `yaml:"admin"`
	Log       LogConfig                 `yaml:"log"`
	Pool      PoolConfig                `yaml:"pool"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Scheduler SchedulerConfig           `yaml:"scheduler"`
	HTTP      HTTPConfig                `yaml:"http"`
	Port      int                       `yaml:"port"`
	Debug     bool                      `yaml:"debug"`
}

// Provider returns the overrides configured for name, or the zero value.
func (c *Config) Provider(name string) ProviderConfig {
	if c == nil || c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// LoadConfig reads and parses the configuration file. It returns the config and any warnings about defaulted values.
var LoadConfig = func(path string) (*Config, []string, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err == nil {
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// A missing file is fine, environment variables may carry everything.

	if err := applyEnv(&config); err != nil {
		return nil, nil, err
	}

	warnings := applyDefaults(&config)

	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, nil, fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if config.Pool.ErrorThreshold < 1 {
		return nil, nil, fmt.Errorf("pool.error_threshold must be positive, got %d", config.Pool.ErrorThreshold)
	}

	return &config, warnings, nil
}

func applyEnv(config *Config) error {
	if dsn := os.Getenv("LEDGERPOOL_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("LEDGERPOOL_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("LEDGERPOOL_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid LEDGERPOOL_PORT %q: %w", port, err)
		}
		config.Port = p
	}
	if password := os.Getenv("LEDGERPOOL_ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if debug := os.Getenv("LEDGERPOOL_DEBUG"); debug != "" {
		config.Debug = debug == "true"
	}
	if file := os.Getenv("LEDGERPOOL_LOG_FILE"); file != "" {
		config.Log.File = file
	}
	return nil
}

func applyDefaults(config *Config) []string {
	var warnings []string

	if config.Port == 0 {
		config.Port = 8081
	}
	if config.Pool.ErrorThreshold == 0 {
		config.Pool.ErrorThreshold = 5
		warnings = append(warnings, "pool.error_threshold not set, using default value of 5")
	}
	if config.Pool.RateWindow <= 0 {
		config.Pool.RateWindow = time.Minute
	}
	if config.Scheduler.RevivalSpec == "" {
		config.Scheduler.RevivalSpec = "@every 10m"
		warnings = append(warnings, "scheduler.revival_spec not set, using default value of @every 10m")
	}
	if config.Scheduler.ReportSpec == "" {
		config.Scheduler.ReportSpec = "0 9 * * *"
	}
	if config.Scheduler.RevivalConcurrency <= 0 {
		config.Scheduler.RevivalConcurrency = 4
	}
	if config.HTTP.Timeout <= 0 {
		config.HTTP.Timeout = 2 * time.Minute
	}
	if config.Log.File != "" {
		if config.Log.MaxSizeMB <= 0 {
			config.Log.MaxSizeMB = 50
		}
		if config.Log.MaxBackups <= 0 {
			config.Log.MaxBackups = 5
		}
		if config.Log.MaxAgeDays <= 0 {
			config.Log.MaxAgeDays = 30
		}
	}
	return warnings
}
