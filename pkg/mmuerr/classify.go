// Error code classification
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmuerr

import "mmu2-host/pkg/protocol"

var exact = map[protocol.ErrorCode]Category{
	protocol.FindaDidntSwitchOn:       FindaDidntTrigger,
	protocol.FindaDidntSwitchOff:      FindaDidntGoOff,
	protocol.FSensorDidntSwitchOn:     FSensorDidntTrigger,
	protocol.FSensorDidntSwitchOff:    FSensorDidntGoOff,
	protocol.StalledPulley:            PulleyCannotMove,
	protocol.MovePulleyFailed:         PulleyCannotMove,
	protocol.HomingSelectorFailed:     SelectorCannotHome,
	protocol.MoveSelectorFailed:       SelectorCannotMove,
	protocol.HomingIdlerFailed:        IdlerCannotHome,
	protocol.MoveIdlerFailed:          IdlerCannotMove,
	protocol.MMUNotResponding:         MMUNotResponding,
	protocol.ProtocolError:            CommunicationError,
	protocol.FilamentAlreadyLoaded:    FilamentAlreadyLoaded,
	protocol.InvalidTool:              InvalidTool,
	protocol.QueueFull:                QueueFull,
	protocol.VersionMismatch:          FWUpdateNeeded,
	protocol.Internal:                 FWRuntimeError,
	protocol.FindaVsEEPROMDisreprancy: UnloadManually,
}

// Subsystems in priority order, each with its fault categories in the order
// of faultBits.
var subsystems = [...]struct {
	bit    protocol.ErrorCode
	faults [6]Category
}{
	{protocol.TMCPulleyBit, [6]Category{
		PulleyTMCDriverError, PulleyTMCDriverReset, PulleyTMCUndervoltage,
		PulleyTMCDriverShorted, PulleyTMCTooHot, PulleyTMCOverheat,
	}},
	{protocol.TMCSelectorBit, [6]Category{
		SelectorTMCDriverError, SelectorTMCDriverReset, SelectorTMCUndervoltage,
		SelectorTMCDriverShorted, SelectorTMCTooHot, SelectorTMCOverheat,
	}},
	{protocol.TMCIdlerBit, [6]Category{
		IdlerTMCDriverError, IdlerTMCDriverReset, IdlerTMCUndervoltage,
		IdlerTMCDriverShorted, IdlerTMCTooHot, IdlerTMCOverheat,
	}},
}

var faultBits = [6]protocol.ErrorCode{
	protocol.TMCIoinMismatch,
	protocol.TMCReset,
	protocol.TMCUndervoltageOnChargePump,
	protocol.TMCShortToGround,
	protocol.TMCOverTemperatureWarn,
	protocol.TMCOverTemperatureError,
}

// Classify returns the category for an MMU error code. Named codes match
// first. Otherwise the first subsystem bit present selects the subsystem and
// the first driver fault present within it selects the category. Anything
// else is Other.
func Classify(ec protocol.ErrorCode) Category {
	if c, ok := exact[ec]; ok {
		return c
	}
	for _, sub := range subsystems {
		if ec&sub.bit == 0 {
			continue
		}
		for i, fault := range faultBits {
			if ec.Has(fault) {
				return sub.faults[i]
			}
		}
		return Other
	}
	return Other
}

// Render writes "TITLE DESCRIPTION" for c into dst, truncating when dst is
// too small, and returns the number of bytes written.
func Render(c Category, dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	e := c.lookup()
	n := copy(dst, e.title)
	if n < len(dst) {
		dst[n] = ' '
		n++
		n += copy(dst[n:], e.desc)
	}
	return n
}

// Translate renders the category of ec into dst.
func Translate(ec protocol.ErrorCode, dst []byte) int {
	return Render(Classify(ec), dst)
}

// Text is Render into a freshly sized buffer.
func Text(c Category) string {
	e := c.lookup()
	buf := make([]byte, len(e.title)+1+len(e.desc))
	return string(buf[:Render(c, buf)])
}
