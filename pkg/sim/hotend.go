// Simulated hotend heater
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sim

import "time"

// PIDParams holds PID controller gains. Output is heater duty (0-1) per
// degree of error.
type PIDParams struct {
	Kp float64
	Ki float64
	Kd float64
}

// HotendConfig describes the simulated heater block.
type HotendConfig struct {
	Ambient float64
	MaxTemp float64
	// HeatRate is the temperature rise in °C/s at full power, ignoring losses.
	HeatRate float64
	// Loss is the fraction of the excess over ambient lost per second.
	Loss float64
	PID  PIDParams
}

// DefaultHotendConfig returns a hotend that reaches 215°C in a few minutes.
func DefaultHotendConfig() HotendConfig {
	return HotendConfig{
		Ambient:  25,
		MaxTemp:  300,
		HeatRate: 2.5,
		Loss:     0.01,
		PID:      PIDParams{Kp: 0.05, Ki: 0.005, Kd: 0.25},
	}
}

// simStep bounds the integration step of the thermal model.
const simStep = 100 * time.Millisecond

// Hotend is a first-order thermal model driven by a PID controller.
// The model advances lazily to the current time on every query.
type Hotend struct {
	cfg HotendConfig
	now func() time.Time

	last     time.Time
	temp     float64
	target   float64
	duty     float64
	integral float64
	prevTemp float64
}

// NewHotend returns a cold hotend. now is the simulation clock.
func NewHotend(cfg HotendConfig, now func() time.Time) *Hotend {
	if now == nil {
		now = time.Now
	}
	return &Hotend{
		cfg:      cfg,
		now:      now,
		last:     now(),
		temp:     cfg.Ambient,
		prevTemp: cfg.Ambient,
	}
}

func (h *Hotend) TargetTemp() float64 {
	h.advance()
	return h.target
}

// SetTargetTemp sets the target, clamped to [0, MaxTemp]. Zero turns the
// heater off.
func (h *Hotend) SetTargetTemp(c float64) {
	h.advance()
	switch {
	case c < 0:
		c = 0
	case c > h.cfg.MaxTemp:
		c = h.cfg.MaxTemp
	}
	h.target = c
	if c == 0 {
		h.duty = 0
		h.integral = 0
	}
}

func (h *Hotend) Temperature() float64 {
	h.advance()
	return h.temp
}

// Duty returns the current heater power, 0 to 1.
func (h *Hotend) Duty() float64 { return h.duty }

func (h *Hotend) advance() {
	now := h.now()
	for now.Sub(h.last) > 0 {
		dt := now.Sub(h.last)
		if dt > simStep {
			dt = simStep
		}
		h.last = h.last.Add(dt)
		h.update(dt.Seconds())
	}
}

func (h *Hotend) update(dt float64) {
	if h.target > 0 {
		h.control(dt)
	}
	h.prevTemp = h.temp
	h.temp += (h.duty*h.cfg.HeatRate - h.cfg.Loss*(h.temp-h.cfg.Ambient)) * dt
}

// control runs one PID iteration. The derivative acts on the measured
// temperature and the integral is clamped to the power limit.
func (h *Hotend) control(dt float64) {
	pid := h.cfg.PID
	e := h.target - h.temp

	h.integral += e * dt
	if pid.Ki > 0 {
		limit := 1 / pid.Ki
		if h.integral > limit {
			h.integral = limit
		} else if h.integral < -limit {
			h.integral = -limit
		}
	}
	d := -pid.Kd * (h.temp - h.prevTemp) / dt

	out := pid.Kp*e + pid.Ki*h.integral + d
	if out > 1 {
		out = 1
	} else if out < 0 {
		out = 0
	}
	h.duty = out
}
