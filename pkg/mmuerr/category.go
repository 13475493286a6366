// Package mmuerr maps MMU error codes onto the fixed table of operator-facing
// error categories.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package mmuerr

import (
	"fmt"
	"strings"
)

// Category indexes the fixed error table. Other is always the last entry.
type Category uint8

const (
	FindaDidntTrigger Category = iota
	FindaDidntGoOff
	FSensorDidntTrigger
	FSensorDidntGoOff
	PulleyCannotMove
	SelectorCannotHome
	SelectorCannotMove
	IdlerCannotHome
	IdlerCannotMove

	PulleyTMCTooHot
	SelectorTMCTooHot
	IdlerTMCTooHot
	PulleyTMCOverheat
	SelectorTMCOverheat
	IdlerTMCOverheat

	PulleyTMCDriverError
	PulleyTMCDriverReset
	PulleyTMCUndervoltage
	PulleyTMCDriverShorted
	SelectorTMCDriverError
	SelectorTMCDriverReset
	SelectorTMCUndervoltage
	SelectorTMCDriverShorted
	IdlerTMCDriverError
	IdlerTMCDriverReset
	IdlerTMCUndervoltage
	IdlerTMCDriverShorted

	MMUNotResponding
	CommunicationError

	FilamentAlreadyLoaded
	InvalidTool
	QueueFull
	FWUpdateNeeded
	FWRuntimeError
	UnloadManually

	Other

	categoryCount
)

// ButtonAction is an operator choice offered on an error screen.
type ButtonAction uint8

const (
	ActionNone ButtonAction = iota
	ActionRetry
	ActionContinue
	ActionResetMMU
	ActionUnload
	ActionStopPrint
	ActionDisableMMU
)

var actionNames = [...]string{
	ActionNone:       "",
	ActionRetry:      "Retry",
	ActionContinue:   "Continue",
	ActionResetMMU:   "Reset MMU",
	ActionUnload:     "Unload",
	ActionStopPrint:  "Stop print",
	ActionDisableMMU: "Disable MMU",
}

func (a ButtonAction) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Buttons is the ordered set of choices on an error screen. Unused positions
// hold ActionNone.
type Buttons [2]ButtonAction

// At returns the action at selection index i, or ActionNone.
func (b Buttons) At(i int) ButtonAction {
	if i < 0 || i >= len(b) {
		return ActionNone
	}
	return b[i]
}

// Count returns the number of populated buttons.
func (b Buttons) Count() int {
	n := 0
	for _, a := range b {
		if a != ActionNone {
			n++
		}
	}
	return n
}

func (b Buttons) String() string {
	parts := make([]string, 0, len(b))
	for _, a := range b {
		if a != ActionNone {
			parts = append(parts, a.String())
		}
	}
	return strings.Join(parts, ", ")
}

type entry struct {
	number uint16
	title  string
	desc   string
	btns   Buttons
}

var (
	retryContinue  = Buttons{ActionRetry, ActionContinue}
	retryReset     = Buttons{ActionRetry, ActionResetMMU}
	continueReset  = Buttons{ActionContinue, ActionResetMMU}
	resetDisable   = Buttons{ActionResetMMU, ActionDisableMMU}
	unloadContinue = Buttons{ActionUnload, ActionContinue}
)

var table = [categoryCount]entry{
	FindaDidntTrigger:   {101, "FINDA DIDNT TRIGGER", "FINDA didn't trigger while loading the filament. Ensure the filament can move and FINDA works.", retryContinue},
	FindaDidntGoOff:     {102, "FINDA: FILAM. STUCK", "FINDA didn't switch off while unloading filament. Try unloading manually. Ensure filament can move and FINDA works.", retryContinue},
	FSensorDidntTrigger: {103, "FSENSOR DIDNT TRIGG.", "Filament sensor didn't trigger while loading the filament. Ensure the sensor is calibrated and the filament reached it.", retryContinue},
	FSensorDidntGoOff:   {104, "FSENSOR: FIL. STUCK", "Filament sensor didn't switch off while unloading filament. Ensure filament can move and the sensor works.", retryContinue},
	PulleyCannotMove:    {105, "PULLEY CANNOT MOVE", "Pulley motor stalled. Ensure the pulley can move and check the wiring.", retryReset},
	SelectorCannotHome:  {115, "SELECTOR CANNOT HOME", "The Selector cannot home properly. Check for anything blocking its movement.", retryReset},
	SelectorCannotMove:  {116, "SELECTOR CANNOT MOVE", "The Selector cannot move. Check for anything blocking its movement. Check the wiring is correct.", retryReset},
	IdlerCannotHome:     {125, "IDLER CANNOT HOME", "The Idler cannot home properly. Check for anything blocking its movement.", retryReset},
	IdlerCannotMove:     {126, "IDLER CANNOT MOVE", "The Idler cannot move properly. Check for anything blocking its movement. Check the wiring is correct.", retryReset},

	PulleyTMCTooHot:     {201, "WARNING TMC TOO HOT", "TMC driver for the Pulley motor is almost overheating. Make sure there is sufficient airflow near the MMU board.", continueReset},
	SelectorTMCTooHot:   {211, "WARNING TMC TOO HOT", "TMC driver for the Selector motor is almost overheating. Make sure there is sufficient airflow near the MMU board.", continueReset},
	IdlerTMCTooHot:      {221, "WARNING TMC TOO HOT", "TMC driver for the Idler motor is almost overheating. Make sure there is sufficient airflow near the MMU board.", continueReset},
	PulleyTMCOverheat:   {301, "TMC OVERHEAT ERROR", "TMC driver for the Pulley motor is overheated. Cool down the MMU board and reset MMU.", resetDisable},
	SelectorTMCOverheat: {311, "TMC OVERHEAT ERROR", "TMC driver for the Selector motor is overheated. Cool down the MMU board and reset MMU.", resetDisable},
	IdlerTMCOverheat:    {321, "TMC OVERHEAT ERROR", "TMC driver for the Idler motor is overheated. Cool down the MMU board and reset MMU.", resetDisable},

	PulleyTMCDriverError:     {401, "TMC DRIVER ERROR", "TMC driver for the Pulley motor is not responding. Try resetting the MMU. If the issue persists contact support.", resetDisable},
	PulleyTMCDriverReset:     {402, "TMC DRIVER RESET", "TMC driver for the Pulley motor was restarted. There is probably an issue with the electronics. Check the wiring and connectors.", resetDisable},
	PulleyTMCUndervoltage:    {403, "TMC UNDERVOLTAGE ERR", "Not enough current for the Pulley TMC driver. There is probably an issue with the electronics. Check the wiring and connectors.", resetDisable},
	PulleyTMCDriverShorted:   {404, "TMC DRIVER SHORTED", "Short circuit on the Pulley TMC driver. Check the wiring and connectors. If the issue persists contact support.", resetDisable},
	SelectorTMCDriverError:   {411, "TMC DRIVER ERROR", "TMC driver for the Selector motor is not responding. Try resetting the MMU. If the issue persists contact support.", resetDisable},
	SelectorTMCDriverReset:   {412, "TMC DRIVER RESET", "TMC driver for the Selector motor was restarted. There is probably an issue with the electronics. Check the wiring and connectors.", resetDisable},
	SelectorTMCUndervoltage:  {413, "TMC UNDERVOLTAGE ERR", "Not enough current for the Selector TMC driver. There is probably an issue with the electronics. Check the wiring and connectors.", resetDisable},
	SelectorTMCDriverShorted: {414, "TMC DRIVER SHORTED", "Short circuit on the Selector TMC driver. Check the wiring and connectors. If the issue persists contact support.", resetDisable},
	IdlerTMCDriverError:      {421, "TMC DRIVER ERROR", "TMC driver for the Idler motor is not responding. Try resetting the MMU. If the issue persists contact support.", resetDisable},
	IdlerTMCDriverReset:      {422, "TMC DRIVER RESET", "TMC driver for the Idler motor was restarted. There is probably an issue with the electronics. Check the wiring and connectors.", resetDisable},
	IdlerTMCUndervoltage:     {423, "TMC UNDERVOLTAGE ERR", "Not enough current for the Idler TMC driver. There is probably an issue with the electronics. Check the wiring and connectors.", resetDisable},
	IdlerTMCDriverShorted:    {424, "TMC DRIVER SHORTED", "Short circuit on the Idler TMC driver. Check the wiring and connectors. If the issue persists contact support.", resetDisable},

	MMUNotResponding:   {501, "MMU NOT RESPONDING", "MMU unit not responding. Check the wiring and connectors. If the issue persists contact support.", resetDisable},
	CommunicationError: {502, "COMMUNICATION ERROR", "MMU unit not responding correctly. Check the wiring and connectors. If the issue persists contact support.", resetDisable},

	FilamentAlreadyLoaded: {601, "FIL. ALREADY LOADED", "Cannot perform the action, filament is already loaded. Unload it first.", unloadContinue},
	InvalidTool:           {602, "INVALID TOOL", "Requested filament tool is not available on this hardware. Check the G-code for tool index out of range (T0-T4).", Buttons{ActionStopPrint, ActionResetMMU}},
	QueueFull:             {603, "QUEUE FULL", "MMU Firmware internal error, please reset the MMU.", Buttons{ActionResetMMU}},
	FWUpdateNeeded:        {604, "MMU FW UPDATE NEEDED", "The MMU unit reports its FW version incompatible with the printer's firmware. Make sure the MMU firmware is up to date.", Buttons{ActionDisableMMU}},
	FWRuntimeError:        {605, "FW RUNTIME ERROR", "Internal runtime error. Try resetting the MMU unit or updating the firmware. If the issue persists contact support.", Buttons{ActionResetMMU}},
	UnloadManually:        {606, "UNLOAD MANUALLY", "Unexpected FINDA reading. Ensure no filament is under FINDA and the selector is free. Check FINDA connection.", Buttons{ActionUnload}},

	Other: {900, "UNKNOWN ERROR", "Unexpected error occurred.", resetDisable},
}

// Categories returns every category in table order.
func Categories() []Category {
	out := make([]Category, 0, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c indexes the table.
func (c Category) Valid() bool {
	return c < categoryCount
}

func (c Category) lookup() entry {
	if c.Valid() {
		return table[c]
	}
	return table[Other]
}

// Number is the catalogue number, e.g. 101 for FINDA didn't trigger.
func (c Category) Number() uint16 { return c.lookup().number }

// Code is the full operator-facing error code with the MMU prefix.
func (c Category) Code() string { return fmt.Sprintf("04%03d", c.Number()) }

func (c Category) Title() string       { return c.lookup().title }
func (c Category) Description() string { return c.lookup().desc }
func (c Category) Buttons() Buttons    { return c.lookup().btns }

func (c Category) String() string {
	return fmt.Sprintf("#%s %s", c.Code(), c.Title())
}
