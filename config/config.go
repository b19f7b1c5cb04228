// Copyright (c) 2026 BVK Chaitanya

// Package config loads and saves the bot configuration file. Settings can be
// overridden with FULFILL_ prefixed environment variables where dots in the
// setting names are replaced with underscores, eg: FULFILL_DEFAULTS_REFRESH_RATE.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/pushover"
	"github.com/bvk/fulfill/telegram"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "FULFILL"

	FileName = "config"
	FileType = "yaml"
)

type Config struct {
	Exchanges map[string]*exchange.Credentials `mapstructure:"exchanges"`

	Defaults Defaults `mapstructure:"defaults"`

	Pushover *pushover.Keys `mapstructure:"pushover"`

	Telegram *telegram.Secrets `mapstructure:"telegram"`
}

// Defaults hold the trade settings used when the command-line doesn't give
// one.
type Defaults struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`

	PriceRetryInterval time.Duration `mapstructure:"price_retry_interval"`
	PriceRetryAttempts int           `mapstructure:"price_retry_attempts"`

	// FundsMode is one of "absolute" or "clamped".
	FundsMode string `mapstructure:"funds_mode"`

	// MaxPlacements limits the order placements per trade. Zero is unlimited.
	MaxPlacements int `mapstructure:"max_placements"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.refresh_rate", "10s")
	v.SetDefault("defaults.price_retry_interval", "5s")
	v.SetDefault("defaults.price_retry_attempts", 0)
	v.SetDefault("defaults.funds_mode", "absolute")
	v.SetDefault("defaults.max_placements", 0)
}

// DefaultDataDir returns the $HOME/.fulfill directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fulfill"
	}
	return filepath.Join(home, ".fulfill")
}

// FilePath returns the config file path inside a data directory.
func FilePath(dataDir string) string {
	return filepath.Join(dataDir, FileName+"."+FileType)
}

func newViper(dataDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType(FileType)
	v.AddConfigPath(dataDir)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load reads the config file from the data directory. A missing config file
// is not an error and loads the defaults.
func Load(dataDir string) (*Config, error) {
	v := newViper(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Exchanges == nil {
		cfg.Exchanges = make(map[string]*exchange.Credentials)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Check() error {
	if c.Defaults.RefreshRate <= 0 {
		return fmt.Errorf("default refresh rate must be positive: %w", os.ErrInvalid)
	}
	if c.Defaults.PriceRetryInterval < 0 || c.Defaults.PriceRetryAttempts < 0 {
		return fmt.Errorf("default price retry settings cannot be negative: %w", os.ErrInvalid)
	}
	if c.Defaults.MaxPlacements < 0 {
		return fmt.Errorf("default max placements cannot be negative: %w", os.ErrInvalid)
	}
	switch c.Defaults.FundsMode {
	case "", "absolute", "clamped":
	default:
		return fmt.Errorf("invalid funds mode %q: %w", c.Defaults.FundsMode, os.ErrInvalid)
	}
	return nil
}

// Credentials returns the saved credentials for an exchange. Returns
// os.ErrNotExist if the exchange has no saved credentials.
func (c *Config) Credentials(name string) (*exchange.Credentials, error) {
	creds, ok := c.Exchanges[strings.ToLower(name)]
	if !ok || creds == nil {
		return nil, fmt.Errorf("no credentials for exchange %q: %w", name, os.ErrNotExist)
	}
	return creds, nil
}

// SetCredentials adds or replaces the credentials for an exchange.
func (c *Config) SetCredentials(name string, creds *exchange.Credentials) {
	if c.Exchanges == nil {
		c.Exchanges = make(map[string]*exchange.Credentials)
	}
	c.Exchanges[strings.ToLower(name)] = &exchange.Credentials{Key: creds.Key, Secret: creds.Secret}
}

// Save writes the config into the data directory, readable only by the
// owner.
func Save(dataDir string, c *Config) error {
	if err := c.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("could not create data directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType(FileType)

	names := make([]string, 0, len(c.Exchanges))
	for name := range c.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		creds := c.Exchanges[name]
		if creds == nil {
			continue
		}
		v.Set("exchanges."+name+".key", creds.Key)
		v.Set("exchanges."+name+".secret", creds.Secret)
	}

	v.Set("defaults.refresh_rate", c.Defaults.RefreshRate.String())
	v.Set("defaults.price_retry_interval", c.Defaults.PriceRetryInterval.String())
	v.Set("defaults.price_retry_attempts", c.Defaults.PriceRetryAttempts)
	v.Set("defaults.funds_mode", c.Defaults.FundsMode)
	v.Set("defaults.max_placements", c.Defaults.MaxPlacements)

	if c.Pushover != nil {
		v.Set("pushover.application_key", c.Pushover.ApplicationKey)
		v.Set("pushover.user_key", c.Pushover.UserKey)
	}
	if c.Telegram != nil {
		v.Set("telegram.token", c.Telegram.BotToken)
		v.Set("telegram.chat_ids", c.Telegram.ChatIDs)
	}

	fpath := FilePath(dataDir)
	if err := v.WriteConfigAs(fpath); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	if err := os.Chmod(fpath, 0600); err != nil {
		return fmt.Errorf("could not restrict config file permissions: %w", err)
	}
	return nil
}
