package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "TASKTRACKER"

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Client ClientConfig `mapstructure:"client" yaml:"client"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

type ClientConfig struct {
	DBPath         string        `mapstructure:"db_path" yaml:"db_path"`
	RemoteURL      string        `mapstructure:"remote_url" yaml:"remote_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
	ReplayTimeout time.Duration `mapstructure:"replay_timeout" yaml:"replay_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.db_path", "./tasktracker.db")
	v.SetDefault("client.db_path", "./tasktracker-client.db")
	v.SetDefault("client.remote_url", "http://localhost:8080")
	v.SetDefault("client.request_timeout", 10*time.Second)
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.probe_interval", 5*time.Second)
	v.SetDefault("sync.replay_timeout", 10*time.Second)
}

// Load reads .env into the environment, then resolves configuration from
// defaults, an optional yaml file, and TASKTRACKER_* variables, in
// increasing order of precedence. With an empty configFile a
// tasktracker.yaml in the working directory is used when present.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("tasktracker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive, got %s", c.Sync.ProbeInterval)
	}
	if c.Sync.ReplayTimeout <= 0 {
		return fmt.Errorf("sync.replay_timeout must be positive, got %s", c.Sync.ReplayTimeout)
	}
	if c.Client.RemoteURL == "" {
		return errors.New("client.remote_url is required")
	}
	return nil
}
