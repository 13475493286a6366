// Package settings holds the command line settings of mmu2-host. Values come
// from flags, MMU2_* environment variables and an optional mmu2-host.yaml,
// in that order of precedence.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings are the process level options. MMU behaviour itself is configured
// by the [mmu2] section of the printer config.
type Settings struct {
	PrinterConfig string `mapstructure:"config"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	HTTPAddr     string `mapstructure:"http"`
	HTTPUser     string `mapstructure:"http-user"`
	HTTPPassword string `mapstructure:"http-password"`

	Cycle  time.Duration `mapstructure:"cycle"`
	Script string        `mapstructure:"script"`
	// Exit after the script instead of serving until interrupted.
	Exit bool `mapstructure:"exit"`

	ResetLine bool `mapstructure:"reset-line"`

	// AutoAnswer picks this error screen button automatically; -1 disables.
	AutoAnswer   int      `mapstructure:"auto-answer"`
	AutoPatience int      `mapstructure:"auto-patience"`
	Faults       []string `mapstructure:"fault"`

	SimHandshake  int     `mapstructure:"sim-handshake"`
	SimStageSteps int     `mapstructure:"sim-stage-steps"`
	SimFirmware   string  `mapstructure:"sim-firmware"`
	SimPreheat    float64 `mapstructure:"sim-preheat"`
}

// SetDefaults registers the default of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("config", "printer.cfg")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("http", ":9100")
	v.SetDefault("http-user", "")
	v.SetDefault("http-password", "")
	v.SetDefault("cycle", 100*time.Millisecond)
	v.SetDefault("script", "")
	v.SetDefault("exit", false)
	v.SetDefault("reset-line", false)
	v.SetDefault("auto-answer", -1)
	v.SetDefault("auto-patience", 20)
	v.SetDefault("fault", []string{})
	v.SetDefault("sim-handshake", 5)
	v.SetDefault("sim-stage-steps", 10)
	v.SetDefault("sim-firmware", "3.0.2")
	v.SetDefault("sim-preheat", 215.0)
}

// Load resolves the settings from v.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix("MMU2")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mmu2-host")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mmu2-host")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for errors.
func (s *Settings) Validate() error {
	if s.PrinterConfig == "" {
		return fmt.Errorf("config cannot be empty")
	}
	if s.Cycle <= 0 {
		return fmt.Errorf("cycle must be positive")
	}
	if s.AutoAnswer < -1 || s.AutoAnswer > 1 {
		return fmt.Errorf("auto-answer must be -1, 0 or 1")
	}
	if s.AutoPatience < 1 {
		return fmt.Errorf("auto-patience must be at least 1")
	}
	if s.SimHandshake < 0 || s.SimStageSteps < 1 {
		return fmt.Errorf("sim-handshake must be non-negative and sim-stage-steps positive")
	}
	return nil
}
