// Printer host collaborators of the MMU orchestrator
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

import "fmt"

// Position is a toolhead position in millimetres.
type Position struct {
	X, Y, Z float64
}

func (p Position) String() string {
	return fmt.Sprintf("X%.2f Y%.2f Z%.2f", p.X, p.Y, p.Z)
}

// Motion moves the toolhead. MoveTo blocks until the move is queued.
type Motion interface {
	Position() Position
	MoveTo(pos Position, feedrate float64)
	// HomedXY reports whether X and Y are homed; parking is skipped otherwise.
	HomedXY() bool
}

// Hotend controls the nozzle heater.
type Hotend interface {
	TargetTemp() float64
	SetTargetTemp(celsius float64)
	Temperature() float64
}

// Extruder drives the printer's own filament motor.
type Extruder interface {
	// Move extrudes (positive) or retracts (negative) distance mm at feedrate mm/s.
	Move(distance, feedrate float64)
	// Synchronize waits for queued extruder moves to complete.
	Synchronize()
}

// FilamentSensor is the printer-side filament sensor.
type FilamentSensor interface {
	Triggered() bool
}

// UserInput yields the operator's choice on the current error screen.
// Neither method may block. DiscardSelections drops choices made before
// the prompt now being shown, so they cannot answer it.
type UserInput interface {
	PollSelection() (index int, ok bool)
	DiscardSelections()
}

// Power switches the MMU supply.
type Power interface {
	PowerOn()
	PowerOff()
}

// ResetLine pulses the MMU hardware reset input.
type ResetLine interface {
	Pulse() error
}

// PrintStopper aborts the running print.
type PrintStopper interface {
	StopPrint()
}

// Printer bundles the host collaborators. Motion, Hotend and Extruder are
// required; the rest may be nil.
type Printer struct {
	Motion   Motion
	Hotend   Hotend
	Extruder Extruder

	Sensor    FilamentSensor
	Input     UserInput
	Power     Power
	ResetLine ResetLine
	Stopper   PrintStopper

	// Idle is called once per wait-loop iteration so the host keeps
	// servicing its own housekeeping.
	Idle func()
}
