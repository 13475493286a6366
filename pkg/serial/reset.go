// MMU hardware reset over a modem control line
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import (
	"fmt"
	"strings"
	"time"
)

// Line selects the modem control line wired to the MMU reset input.
type Line uint8

const (
	LineNone Line = iota
	LineDTR
	LineRTS
)

// ParseLine parses "dtr", "rts" or "none".
func ParseLine(s string) (Line, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dtr":
		return LineDTR, nil
	case "rts":
		return LineRTS, nil
	case "none", "":
		return LineNone, nil
	}
	return LineNone, fmt.Errorf("serial: unknown reset line %q", s)
}

func (l Line) String() string {
	switch l {
	case LineDTR:
		return "dtr"
	case LineRTS:
		return "rts"
	default:
		return "none"
	}
}

// ModemLines is the part of a Port the reset line needs.
type ModemLines interface {
	SetDTR(on bool) error
	SetRTS(on bool) error
}

// Flusher is implemented by ports that can drop buffered line data.
type Flusher interface {
	Flush() error
}

// ResetLine pulses a modem control line to hold the MMU in reset. The
// reset input is active while the line is asserted. When the lines also
// implement Flusher, bytes from before the reset are dropped after the
// pulse so the next handshake starts on a clean link.
type ResetLine struct {
	lines ModemLines
	line  Line
	width time.Duration
	sleep func(time.Duration)
}

// NewResetLine returns a reset line on the given modem line, asserted for
// width on every pulse.
func NewResetLine(lines ModemLines, line Line, width time.Duration) *ResetLine {
	return &ResetLine{
		lines: lines,
		line:  line,
		width: width,
		sleep: time.Sleep,
	}
}

func (r *ResetLine) set(on bool) error {
	switch r.line {
	case LineDTR:
		return r.lines.SetDTR(on)
	case LineRTS:
		return r.lines.SetRTS(on)
	}
	return fmt.Errorf("serial: no reset line configured")
}

// Pulse asserts the line for the configured width and releases it.
func (r *ResetLine) Pulse() error {
	if err := r.set(true); err != nil {
		return fmt.Errorf("serial: assert %s: %w", r.line, err)
	}
	r.sleep(r.width)
	if err := r.set(false); err != nil {
		return fmt.Errorf("serial: release %s: %w", r.line, err)
	}
	if f, ok := r.lines.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("serial: flush after reset: %w", err)
		}
	}
	return nil
}
