// Package protocol defines the vocabulary shared with the MMU protocol logic
// layer: step results, error and progress codes, command identifiers and the
// Logic interface the orchestrator drives one step at a time.
//
// The framing, timing and retransmission of the serial protocol live behind
// the Logic interface and are not implemented here.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package protocol

import "fmt"

// StepStatus is the outcome of one non-blocking step of the protocol logic.
type StepStatus uint8

const (
	// StepRunning means a command (or the handshake) is still in progress.
	StepRunning StepStatus = iota
	// StepFinished means the last command completed successfully.
	StepFinished
	// StepError means the MMU or the link reported an error; see Logic.Error.
	StepError
)

func (s StepStatus) String() string {
	switch s {
	case StepRunning:
		return "running"
	case StepFinished:
		return "finished"
	case StepError:
		return "error"
	default:
		return "unknown"
	}
}

// Command identifies the command the MMU is currently executing.
// The values are the request letters used on the wire.
type Command uint8

const (
	NoCommand      Command = 0
	CutFilament    Command = 'K'
	EjectFilament  Command = 'E'
	Homing         Command = 'H'
	LoadFilament   Command = 'L'
	Reset          Command = 'X'
	ToolChange     Command = 'T'
	UnloadFilament Command = 'U'
)

func (c Command) String() string {
	switch c {
	case NoCommand:
		return "none"
	case CutFilament:
		return "cut"
	case EjectFilament:
		return "eject"
	case Homing:
		return "home"
	case LoadFilament:
		return "load"
	case Reset:
		return "reset"
	case ToolChange:
		return "tool_change"
	case UnloadFilament:
		return "unload"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// Button is a choice relayed to the MMU while it waits for the operator.
type Button uint8

const (
	ButtonRight Button = iota
	ButtonMiddle
	ButtonLeft
	NoButton Button = 0xFF
)

func (b Button) String() string {
	switch b {
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	case ButtonLeft:
		return "left"
	case NoButton:
		return "none"
	default:
		return fmt.Sprintf("button(%d)", uint8(b))
	}
}

// Version is the firmware version reported by the MMU.
type Version struct {
	Major, Minor, Build uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// IsZero reports whether no version is known.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Logic is the protocol layer as seen by the orchestrator.
// Every method must return promptly; Step performs at most one unit of work.
type Logic interface {
	// Start begins the handshake with the MMU.
	Start()
	// Stop halts communication.
	Stop()
	// Step advances the protocol state machine by one step.
	Step() StepStatus
	// Running reports whether the handshake has completed and the link is live.
	Running() bool

	Error() ErrorCode
	Progress() ProgressCode
	Command() Command
	FindaPressed() bool
	FirmwareVersion() Version

	ToolChange(slot uint8)
	LoadFilament(slot uint8)
	UnloadFilament()
	EjectFilament(slot uint8)
	CutFilament(slot uint8)
	Home(mode uint8)
	Button(b Button)
	// ResetMMU asks the MMU to watchdog-reset itself.
	ResetMMU()
}
