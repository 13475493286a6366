// Typed [mmu2] section settings
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"time"

	"mmu2-host/pkg/errors"
)

// MMUSection is the printer.cfg section holding the MMU settings.
const MMUSection = "mmu2"

// MMU is the effective [mmu2] configuration.
type MMU struct {
	Enabled  bool   `yaml:"enabled"`
	Slots    int    `yaml:"slots"`
	Serial   string `yaml:"serial"`
	Baud     int    `yaml:"baud"`
	ResetPin string `yaml:"reset_pin"`

	ResetPulse       time.Duration `yaml:"reset_pulse"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	SampleInterval   time.Duration `yaml:"sample_interval"`
	PowerCycleSettle time.Duration `yaml:"power_cycle_settle"`
	CooldownTimeout  time.Duration `yaml:"cooldown_timeout"`
	AutoRetries      int           `yaml:"auto_retries"`

	ParkX          float64 `yaml:"park_x"`
	ParkY          float64 `yaml:"park_y"`
	ParkZLift      float64 `yaml:"park_z_lift"`
	ParkFeedrateXY float64 `yaml:"park_speed_xy"`
	ParkFeedrateZ  float64 `yaml:"park_speed_z"`

	MinExtrudeTemp     float64 `yaml:"min_extrude_temp"`
	FSensorExtraFeed   float64 `yaml:"fsensor_extra_feed"`
	LoadFeedrate       float64 `yaml:"load_speed"`
	UnloadAssistLength float64 `yaml:"unload_assist"`
	EjectRetract       float64 `yaml:"eject_retract"`
}

// DefaultMMU returns the settings used for options absent from [mmu2].
func DefaultMMU() MMU {
	return MMU{
		Enabled:          true,
		Slots:            5,
		Serial:           "/dev/ttyAMA0",
		Baud:             115200,
		ResetPin:         "dtr",
		ResetPulse:       100 * time.Millisecond,
		ReadyTimeout:     30 * time.Second,
		SampleInterval:   100 * time.Millisecond,
		PowerCycleSettle: time.Second,
		CooldownTimeout:  30 * time.Minute,

		ParkX:          125,
		ParkY:          0,
		ParkZLift:      20,
		ParkFeedrateXY: 50,
		ParkFeedrateZ:  15,

		MinExtrudeTemp:     175,
		FSensorExtraFeed:   30,
		LoadFeedrate:       20,
		UnloadAssistLength: 10,
		EjectRetract:       80,
	}
}

// LoadMMU reads [mmu2] from cfg. A missing section yields the defaults.
func LoadMMU(cfg *Config) (MMU, error) {
	m := DefaultMMU()
	s := cfg.SectionOptional(MMUSection)
	if s == nil {
		return m, nil
	}

	var err error
	if m.Enabled, err = s.GetBool("enabled", m.Enabled); err != nil {
		return MMU{}, err
	}
	if m.Slots, err = s.GetIntRange("slots", 1, 254, m.Slots); err != nil {
		return MMU{}, err
	}
	if m.Serial, err = s.Get("serial", m.Serial); err != nil {
		return MMU{}, err
	}
	if m.Baud, err = s.GetIntRange("baud", 1200, 4000000, m.Baud); err != nil {
		return MMU{}, err
	}
	if m.ResetPin, err = s.GetChoice("reset_pin", []string{"dtr", "rts", "none"}, m.ResetPin); err != nil {
		return MMU{}, err
	}
	if m.AutoRetries, err = s.GetIntRange("auto_retries", 0, 10, m.AutoRetries); err != nil {
		return MMU{}, err
	}

	durations := []struct {
		option string
		bounds FloatBounds
		dst    *time.Duration
	}{
		{"reset_pulse", Above(0), &m.ResetPulse},
		{"ready_timeout", Min(0), &m.ReadyTimeout},
		{"sample_interval", Above(0), &m.SampleInterval},
		{"power_cycle_settle", Min(0), &m.PowerCycleSettle},
		{"cooldown_timeout", Above(0), &m.CooldownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = s.GetDuration(d.option, d.bounds, *d.dst); err != nil {
			return MMU{}, err
		}
	}

	floats := []struct {
		option string
		bounds FloatBounds
		dst    *float64
	}{
		{"park_x", FloatBounds{}, &m.ParkX},
		{"park_y", FloatBounds{}, &m.ParkY},
		{"park_z_lift", Min(0), &m.ParkZLift},
		{"park_speed_xy", Above(0), &m.ParkFeedrateXY},
		{"park_speed_z", Above(0), &m.ParkFeedrateZ},
		{"min_extrude_temp", Min(0), &m.MinExtrudeTemp},
		{"fsensor_extra_feed", Min(0), &m.FSensorExtraFeed},
		{"load_speed", Above(0), &m.LoadFeedrate},
		{"unload_assist", Min(0), &m.UnloadAssistLength},
		{"eject_retract", Min(0), &m.EjectRetract},
	}
	for _, f := range floats {
		if *f.dst, err = s.GetFloatBounded(f.option, f.bounds, *f.dst); err != nil {
			return MMU{}, err
		}
	}

	if unused := s.UnusedOptions(); len(unused) > 0 {
		return MMU{}, errors.ConfigValidationError(MMUSection, unused[0], "unknown option")
	}
	if err := m.Validate(); err != nil {
		return MMU{}, err
	}
	return m, nil
}

// Validate checks cross-field constraints.
func (m MMU) Validate() error {
	if m.Slots < 1 || m.Slots > 254 {
		return errors.ConfigValidationError(MMUSection, "slots", "must be between 1 and 254")
	}
	if m.SampleInterval <= 0 {
		return errors.ConfigValidationError(MMUSection, "sample_interval", "must be positive")
	}
	if m.ReadyTimeout < m.SampleInterval && m.ReadyTimeout != 0 {
		return errors.ConfigValidationError(MMUSection, "ready_timeout", "must not be shorter than sample_interval")
	}
	for _, f := range []struct {
		option string
		v      float64
	}{
		{"park_speed_xy", m.ParkFeedrateXY},
		{"park_speed_z", m.ParkFeedrateZ},
		{"load_speed", m.LoadFeedrate},
	} {
		if f.v <= 0 {
			return errors.ConfigValidationError(MMUSection, f.option, "must be positive")
		}
	}
	return nil
}
