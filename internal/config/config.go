package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// TierConfig is one priority tier's scheduling parameters in the config
// file. Interval is in ticks; 0 means "never updated".
type TierConfig struct {
	Interval      uint64 `yaml:"interval"`
	MaxPopulation int    `yaml:"max_population"`
}

// PoolConfig sizes the session pool.
type PoolConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// EntryQueueConfig tunes world-entry admission.
type EntryQueueConfig struct {
	MaxConcurrent int64         `yaml:"max_concurrent"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	AdmitPerTick  int           `yaml:"admit_per_tick"`
}

// SpawnEntry is one bot to boot at startup.
type SpawnEntry struct {
	Login       string `yaml:"login"`
	Password    string `yaml:"password"`
	CharacterID int64  `yaml:"character_id"`
}

// BotServer holds all configuration for the bot server.
type BotServer struct {
	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Tick loop
	TickInterval time.Duration `yaml:"tick_interval"`

	// Population
	MaxPopulation int `yaml:"max_population"`

	// Database
	Database      DatabaseConfig `yaml:"database"`
	DBTimeout     time.Duration  `yaml:"db_timeout"`
	DBMaxInFlight int64          `yaml:"db_max_inflight"`

	// Security
	AutoCreateAccounts bool `yaml:"auto_create_accounts"`

	// Priority tiers, in order: emergency, high, medium, low, suspended.
	Tiers struct {
		Emergency TierConfig `yaml:"emergency"`
		High      TierConfig `yaml:"high"`
		Medium    TierConfig `yaml:"medium"`
		Low       TierConfig `yaml:"low"`
	} `yaml:"tiers"`

	Pool               PoolConfig       `yaml:"pool"`
	PoolShrinkInterval time.Duration    `yaml:"pool_shrink_interval"`
	EntryQueue         EntryQueueConfig `yaml:"entry_queue"`

	// Diagnostics
	StallThreshold   time.Duration `yaml:"stall_threshold"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	DeadlockDumpDir  string        `yaml:"deadlock_dump_dir"`
	DebugMarkerFile  string        `yaml:"debug_marker_file"`

	// Shutdown
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// Bots to boot at startup.
	Spawns []SpawnEntry `yaml:"spawns"`
}

// DefaultBotServer returns BotServer config with sensible defaults.
func DefaultBotServer() BotServer {
	cfg := BotServer{
		LogLevel:           "info",
		TickInterval:       100 * time.Millisecond,
		MaxPopulation:      5000,
		DBTimeout:          10 * time.Second,
		DBMaxInFlight:      16,
		AutoCreateAccounts: true,
		Pool:               PoolConfig{Min: 64, Max: 1024},
		PoolShrinkInterval: time.Minute,
		EntryQueue: EntryQueueConfig{
			MaxConcurrent: 4,
			RetryBackoff:  2 * time.Second,
			AdmitPerTick:  4,
		},
		StallThreshold:   10 * time.Second,
		WatchdogInterval: time.Second,
		DeadlockDumpDir:  "dumps",
		DrainTimeout:     15 * time.Second,
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "la2bots",
			Password: "la2bots",
			DBName:   "la2bots",
			SSLMode:  "disable",
		},
	}
	cfg.Tiers.Emergency = TierConfig{Interval: 1, MaxPopulation: 200}
	cfg.Tiers.High = TierConfig{Interval: 2, MaxPopulation: 1000}
	cfg.Tiers.Medium = TierConfig{Interval: 4}
	cfg.Tiers.Low = TierConfig{Interval: 8}
	return cfg
}

// LoadBotServer loads bot server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadBotServer(path string) (BotServer, error) {
	cfg := DefaultBotServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
