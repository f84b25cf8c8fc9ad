// Package config loads settings from the environment and an optional yaml file.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	LogLevel              string  `mapstructure:"log_level" yaml:"log_level"`
	LogPretty             bool    `mapstructure:"log_pretty" yaml:"log_pretty"`
	WorkspacePath         string  `mapstructure:"workspace_path" yaml:"workspace_path"`
	ProcessTimeout        int     `mapstructure:"process_timeout" yaml:"process_timeout"`
	DatabaseURL           string  `mapstructure:"database_url" yaml:"database_url"`
	Host                  string  `mapstructure:"host" yaml:"host"`
	Port                  int     `mapstructure:"port" yaml:"port"`
	NATSURL               string  `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubject           string  `mapstructure:"nats_subject" yaml:"nats_subject"`
	RestrictCodeExecution bool    `mapstructure:"restrict_code_execution" yaml:"restrict_code_execution"`
	AutoInstallPacks      bool    `mapstructure:"auto_install_packs" yaml:"auto_install_packs"`
	MaxSteps              int     `mapstructure:"max_steps" yaml:"max_steps"`
	StepRate              float64 `mapstructure:"step_rate" yaml:"step_rate"`
	DevelopmentMode       bool    `mapstructure:"development_mode" yaml:"development_mode"`
	OpenAIAPIKey          string  `mapstructure:"openai_api_key" yaml:"-"`
}

var defaults = map[string]any{
	"log_level":               "info",
	"log_pretty":              true,
	"workspace_path":          "workspace",
	"process_timeout":         30,
	"database_url":            "",
	"host":                    "localhost",
	"port":                    8000,
	"nats_url":                "",
	"nats_subject":            "agent.events",
	"restrict_code_execution": false,
	"auto_install_packs":      true,
	"max_steps":               50,
	"step_rate":               2.0,
	"development_mode":        false,
	"openai_api_key":          "",
}

// Load reads path when it is not empty, then lets environment variables
// (LOG_LEVEL, DATABASE_URL, ...) override it.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ProcessTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: process_timeout must be positive, got %d", ErrInvalid, c.ProcessTimeout))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port out of range: %d", ErrInvalid, c.Port))
	}
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("%w: max_steps must not be negative", ErrInvalid))
	}
	if c.StepRate < 0 {
		errs = append(errs, fmt.Errorf("%w: step_rate must not be negative", ErrInvalid))
	}
	if strings.TrimSpace(c.WorkspacePath) == "" {
		errs = append(errs, fmt.Errorf("%w: workspace_path is empty", ErrInvalid))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.ProcessTimeout) * time.Second
}
