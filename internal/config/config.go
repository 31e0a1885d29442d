// Package config reads ontology.yml with environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ONTOLOGY_LOG_LEVEL
const EnvPrefix = "ONTOLOGY"

// Config represents ontology.yml
type Config struct {
	Packages   []string         `mapstructure:"packages"`
	Watch      bool             `mapstructure:"watch"`
	Log        LogConfig        `mapstructure:"log"`
	Console    ConsoleConfig    `mapstructure:"console"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Drift      DriftConfig      `mapstructure:"drift"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ConsoleConfig holds console transport settings
type ConsoleConfig struct {
	Addr string `mapstructure:"addr"`
}

// EvaluationConfig bounds evaluations
type EvaluationConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DriftConfig points at the snapshot CI compares against
type DriftConfig struct {
	Snapshot string `mapstructure:"snapshot"`
}

// New returns a viper instance with defaults and environment overrides set.
// An empty file searches ontology.yml in the working directory.
func New(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ontology")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("packages", []string{"schemas"})
	v.SetDefault("watch", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("console.addr", "127.0.0.1:8750")
	v.SetDefault("evaluation.deadline", 2*time.Second)
	v.SetDefault("evaluation.debounce", 200*time.Millisecond)
	v.SetDefault("drift.snapshot", ".ontology/snapshot.yml")
	return v
}

// Load reads the config file into v, if one exists, and decodes it. A missing
// ontology.yml is not an error; an explicitly named file must exist.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Packages) == 0 {
		return nil, fmt.Errorf("no package paths configured (set 'packages' in ontology.yml)")
	}
	return &cfg, nil
}
