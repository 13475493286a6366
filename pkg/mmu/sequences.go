// Extruder move sequences
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

// extruderStep is one relative extruder move: distance in mm (negative
// retracts) at feedrate in mm/s.
type extruderStep struct {
	distance float64
	feedrate float64
}

// rammingSequence shapes the filament tip before the MMU pulls it out.
var rammingSequence = []extruderStep{
	{1.0, 1000.0 / 60},
	{1.0, 1500.0 / 60},
	{2.0, 2000.0 / 60},
	{1.5, 3000.0 / 60},
	{2.5, 4000.0 / 60},
	{-15.0, 5000.0 / 60},
	{-14.0, 1200.0 / 60},
	{-6.0, 600.0 / 60},
	{10.0, 700.0 / 60},
	{-10.0, 400.0 / 60},
	{-50.0, 2000.0 / 60},
}

// loadToNozzleSequence finishes a load from the extruder gears to the nozzle.
var loadToNozzleSequence = []extruderStep{
	{10.0, 810.0 / 60},
	{25.0, 198.0 / 60},
}

func (m *MMU) executeSequence(seq []extruderStep) {
	ex := m.printer.Extruder
	ex.Synchronize()
	for _, s := range seq {
		ex.Move(s.distance, s.feedrate)
	}
	ex.Synchronize()
}
