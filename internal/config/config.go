// Package config loads runtime settings for the lotbridge CLI and server.
//
// Settings come from, in increasing precedence: defaults, an optional config
// file (YAML, TOML or JSON, picked by extension), LOTBRIDGE_* environment
// variables, and command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LOTBRIDGE_DB.
const EnvPrefix = "LOTBRIDGE"

// Keys, shared by config files, env vars (upper-cased, dots as underscores)
// and flag bindings.
const (
	KeyDB              = "db"
	KeyGenesis         = "genesis"
	KeyListen          = "listen"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyInvariantChecks = "invariant_checks"
)

// Config is the resolved runtime configuration.
type Config struct {
	DB              string    `mapstructure:"db" yaml:"db"`                             // SQLite database path
	Genesis         string    `mapstructure:"genesis" yaml:"genesis"`                   // CUE genesis file; empty uses the built-in default
	Listen          string    `mapstructure:"listen" yaml:"listen"`                     // HTTP listen address for serve
	Log             LogConfig `mapstructure:"log" yaml:"log"`                           // Logger settings
	InvariantChecks bool      `mapstructure:"invariant_checks" yaml:"invariant_checks"` // Check conservation after every committed transaction
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DB:              "lotbridge.db",
		Listen:          "127.0.0.1:8545",
		Log:             LogConfig{Level: "info", Format: "text"},
		InvariantChecks: true,
	}
}

// Load resolves the configuration. filePath may be empty; a named file that
// does not exist is an error. flags may be nil; only flags the user set
// override file and env values.
func Load(filePath string, flags map[string]*pflag.Flag) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		if _, err := os.Stat(filePath); errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", filePath)
		}
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", filePath, err)
		}
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyDB, d.DB)
	v.SetDefault(KeyGenesis, d.Genesis)
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyInvariantChecks, d.InvariantChecks)
}

// Validate rejects settings that cannot be used.
func (c Config) Validate() error {
	if c.DB == "" {
		return errors.New("config: db must not be empty")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
