// MMU availability states
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

import "fmt"

// State is the availability of the MMU.
type State uint8

const (
	// StateActive means the handshake completed and commands are accepted.
	StateActive State = iota
	// StateConnecting means the MMU is wanted but not communicating yet.
	StateConnecting
	// StateStopped means the MMU is disabled and unpowered.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateConnecting:
		return "connecting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// NoSlot marks the absence of a filament slot.
const NoSlot uint8 = 0xFF

// ResetForm selects how hard the MMU is reset.
type ResetForm uint8

const (
	// ResetSoftware asks the MMU firmware to reset itself.
	ResetSoftware ResetForm = iota
	// ResetPin pulses the hardware reset line.
	ResetPin
	// ResetPowerCycle cuts and restores power. Blocks for the settle time.
	ResetPowerCycle
)

func (r ResetForm) String() string {
	switch r {
	case ResetSoftware:
		return "software"
	case ResetPin:
		return "pin"
	case ResetPowerCycle:
		return "power_cycle"
	default:
		return fmt.Sprintf("reset(%d)", uint8(r))
	}
}

// SavedState records what the recovery controller changed on the printer.
type SavedState uint8

const (
	SavedNone            SavedState = 0
	SavedParkExtruder    SavedState = 1 << 0
	SavedCooldown        SavedState = 1 << 1
	SavedCooldownPending SavedState = 1 << 2
)

func (s SavedState) Has(f SavedState) bool { return s&f != 0 }

func (s SavedState) String() string {
	if s == SavedNone {
		return "none"
	}
	out := ""
	for _, f := range []struct {
		flag SavedState
		name string
	}{
		{SavedParkExtruder, "park"},
		{SavedCooldown, "cooldown"},
		{SavedCooldownPending, "cooldown_pending"},
	} {
		if s.Has(f.flag) {
			if out != "" {
				out += "|"
			}
			out += f.name
		}
	}
	return out
}
