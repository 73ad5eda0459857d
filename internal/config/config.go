package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	DSN      string
	GammaURL string

	FromBlock     uint64
	BatchSize     uint64
	Confirmations uint64
	ReorgPadding  uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	PollInterval  time.Duration
	Continuous    bool

	SyncInterval time.Duration
	MarketLimit  int
	CacheTTL     time.Duration

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLYMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("gamma-url", "https://gamma-api.polymarket.com")
	v.SetDefault("batch-size", uint64(50))
	v.SetDefault("confirmations", uint64(0))
	v.SetDefault("reorg-padding", uint64(8))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("continuous", true)
	v.SetDefault("sync-interval", 10*time.Minute)
	v.SetDefault("market-limit", 500)
	v.SetDefault("cache-ttl", time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:        v.GetString("rpc"),
		DSN:           v.GetString("dsn"),
		GammaURL:      v.GetString("gamma-url"),
		FromBlock:     v.GetUint64("from"),
		BatchSize:     v.GetUint64("batch-size"),
		Confirmations: v.GetUint64("confirmations"),
		ReorgPadding:  v.GetUint64("reorg-padding"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		PollInterval:  v.GetDuration("poll-interval"),
		Continuous:    v.GetBool("continuous"),
		SyncInterval:  v.GetDuration("sync-interval"),
		MarketLimit:   v.GetInt("market-limit"),
		CacheTTL:      v.GetDuration("cache-ttl"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate reports the first missing value a scan run cannot start without.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc endpoint is required")
	}
	if c.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	return nil
}
