package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"election-ledger/logging"
)

// Config holds all configuration settings for the ledger service
type Config struct {
	Port         int    `mapstructure:"port"`
	StorageDir   string `mapstructure:"storage_dir"`
	AdminKeyFile string `mapstructure:"admin_key_file"`
	AdminAddress string `mapstructure:"admin_address"`

	// Bounds of the in-memory challenge and session caches
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	ChallengeTTL  time.Duration `mapstructure:"challenge_ttl"`
	MaxChallenges int           `mapstructure:"max_challenges"`
	MaxSessions   int           `mapstructure:"max_sessions"`

	Journal  JournalConfig  `mapstructure:"journal"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Log      logging.Config `mapstructure:"log"`
}

type JournalConfig struct {
	BlockSize  int   `mapstructure:"block_size"`
	Difficulty uint8 `mapstructure:"difficulty"`
}

// SnapshotConfig controls periodic ledger snapshots. Schedule is a cron spec;
// an empty schedule disables the job.
type SnapshotConfig struct {
	Schedule string `mapstructure:"schedule"`
	Keep     int    `mapstructure:"keep"`
}

type QueueConfig struct {
	Size int `mapstructure:"size"`
}

// Load reads the configuration file and environment variables. A missing
// file is not an error; defaults and ELECTION_* variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ELECTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("storage_dir", "data")
	v.SetDefault("admin_key_file", "data/admin.key")
	v.SetDefault("admin_address", "")

	v.SetDefault("session_ttl", "1h")
	v.SetDefault("challenge_ttl", "5m")
	v.SetDefault("max_challenges", 10000)
	v.SetDefault("max_sessions", 10000)

	v.SetDefault("journal.block_size", 5)
	v.SetDefault("journal.difficulty", 1)

	v.SetDefault("snapshot.schedule", "@every 1m")
	v.SetDefault("snapshot.keep", 5)

	v.SetDefault("queue.size", 100)

	log := logging.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.output_path", log.OutputPath)
	v.SetDefault("log.max_size", log.MaxSize)
	v.SetDefault("log.max_age", log.MaxAge)
	v.SetDefault("log.max_backups", log.MaxBackups)
	v.SetDefault("log.compress", log.Compress)
	v.SetDefault("log.console", log.Console)
	v.SetDefault("log.debug", log.Debug)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.StorageDir == "" {
		return errors.New("storage_dir is required")
	}
	if c.AdminKeyFile == "" {
		return errors.New("admin_key_file is required")
	}
	if c.AdminAddress != "" && !common.IsHexAddress(c.AdminAddress) {
		return fmt.Errorf("admin_address %q is not a hex address", c.AdminAddress)
	}
	if c.SessionTTL <= 0 || c.ChallengeTTL <= 0 {
		return errors.New("session_ttl and challenge_ttl must be positive")
	}
	if c.MaxChallenges < 1 || c.MaxSessions < 1 {
		return errors.New("max_challenges and max_sessions must be positive")
	}
	if c.Journal.BlockSize < 1 {
		return errors.New("journal.block_size must be positive")
	}
	if c.Journal.Difficulty > 3 {
		return fmt.Errorf("journal.difficulty %d too high, at most 3 leading zero bytes", c.Journal.Difficulty)
	}
	if c.Snapshot.Schedule != "" {
		if _, err := cron.ParseStandard(c.Snapshot.Schedule); err != nil {
			return fmt.Errorf("snapshot.schedule: %w", err)
		}
	}
	if c.Snapshot.Keep < 1 {
		return errors.New("snapshot.keep must be positive")
	}
	if c.Queue.Size < 1 {
		return errors.New("queue.size must be positive")
	}
	return nil
}
