// Package config loads the reactor configuration from defaults, an
// optional YAML file, REACTOR_* environment variables and command flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/reactor/internal/executor"
	"github.com/roach88/reactor/internal/syncmgr"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "REACTOR"

// ErrInvalidConfig wraps every validation failure of Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the reactor configuration.
type Config struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Executor struct {
		Concurrency int           `mapstructure:"concurrency"`
		JobTimeout  time.Duration `mapstructure:"job_timeout"`
		MaxRetries  int           `mapstructure:"max_retries"`
		CacheSize   int           `mapstructure:"cache_size"`
	} `mapstructure:"executor"`

	Queue struct {
		Branch string `mapstructure:"branch"`
	} `mapstructure:"queue"`

	Logging Logging `mapstructure:"logging"`

	ListenAddress string `mapstructure:"listen_address"`

	Sync struct {
		BatchSize    int            `mapstructure:"batch_size"`
		PollInterval time.Duration  `mapstructure:"poll_interval"`
		Remotes      []RemoteConfig `mapstructure:"remotes"`
	} `mapstructure:"sync"`

	Models struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"models"`

	Signing struct {
		KeyFile           string            `mapstructure:"key_file"`
		SignerID          string            `mapstructure:"signer_id"`
		RequireSignatures bool              `mapstructure:"require_signatures"`
		TrustedKeys       map[string]string `mapstructure:"trusted_keys"` // signer id -> hex public key
	} `mapstructure:"signing"`
}

// Logging configures the process logger.
type Logging struct {
	Format        string `mapstructure:"format"`
	Level         string `mapstructure:"level"`
	Output        string `mapstructure:"output"`
	FileMaxSizeMB int    `mapstructure:"file_max_size_mb"`
	FilesKeep     int    `mapstructure:"files_keep"`
}

// RemoteConfig is one remote to open on start.
type RemoteConfig struct {
	Name         string                `mapstructure:"name"`
	CollectionID string                `mapstructure:"collection_id"`
	Channel      syncmgr.ChannelConfig `mapstructure:"channel"`
	Filter       syncmgr.Filter        `mapstructure:"filter"`
	Backfill     syncmgr.Backfill      `mapstructure:"backfill"`
}

// FlagKeys maps command flag names to the keys they override.
var FlagKeys = map[string]string{
	"db":        DatabasePathKey,
	"listen":    ListenAddressKey,
	"log-level": LoggingLevelKey,
	"log-file":  LoggingOutputKey,
	"models":    ModelsDirKey,
}

// Load reads the configuration. path may be empty. Flags in flags that
// appear in FlagKeys and were set on the command line win over every
// other source.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that the decoder cannot.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, DatabasePathKey)
	}
	if c.Executor.Concurrency <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, ExecutorConcurrencyKey)
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, ExecutorMaxRetriesKey)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %s must be text or json, got %q", ErrInvalidConfig, LoggingFormatKey, c.Logging.Format)
	}
	seen := map[string]bool{}
	for i, r := range c.Sync.Remotes {
		if r.Name == "" || r.CollectionID == "" || r.Channel.Type == "" {
			return fmt.Errorf("%w: %s[%d] needs name, collection_id and channel.type", ErrInvalidConfig, SyncRemotesKey, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate remote %q", ErrInvalidConfig, r.Name)
		}
		seen[r.Name] = true
	}
	if c.Signing.KeyFile != "" && c.Signing.SignerID == "" {
		return fmt.Errorf("%w: %s is required with %s", ErrInvalidConfig, SigningSignerIDKey, SigningKeyFileKey)
	}
	return nil
}

// ExecutorConfig returns the executor settings. Signing is wired by the
// caller.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		Concurrency: c.Executor.Concurrency,
		JobTimeout:  c.Executor.JobTimeout,
		CacheSize:   c.Executor.CacheSize,
	}
}

// SyncConfig returns the sync manager settings.
func (c *Config) SyncConfig() syncmgr.Config {
	return syncmgr.Config{
		BatchSize:    c.Sync.BatchSize,
		PollInterval: c.Sync.PollInterval,
	}
}

// RemoteSpecs returns the configured remotes as sync manager specs.
func (c *Config) RemoteSpecs() []syncmgr.Spec {
	specs := make([]syncmgr.Spec, 0, len(c.Sync.Remotes))
	for _, r := range c.Sync.Remotes {
		specs = append(specs, syncmgr.Spec{
			RemoteID:     r.Name,
			CollectionID: r.CollectionID,
			Channel:      r.Channel,
			Filter:       r.Filter,
			Backfill:     r.Backfill,
		})
	}
	return specs
}
