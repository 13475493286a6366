// Simulated printer toolhead and extruder
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sim

import (
	"math"

	"mmu2-host/pkg/log"
	"mmu2-host/pkg/mmu"
)

// Printer is the simulated printer the MMU is attached to. Moves complete
// instantly.
type Printer struct {
	log *log.Logger
	acc *Accessory

	pos   mmu.Position
	homed bool

	Hotend *Hotend

	extruded float64
	pending  int
	stopped  bool
	powered  bool
}

// NewPrinter returns a homed printer with the toolhead at pos. The filament
// sensor follows acc.
func NewPrinter(acc *Accessory, hotend *Hotend, pos mmu.Position) *Printer {
	return &Printer{
		log:    log.GetLogger("sim.printer"),
		acc:    acc,
		pos:    pos,
		homed:  true,
		Hotend: hotend,
	}
}

// SetLogger replaces the logger.
func (p *Printer) SetLogger(l *log.Logger) { p.log = l }

// SetHomed marks the XY axes homed or not.
func (p *Printer) SetHomed(homed bool) { p.homed = homed }

func (p *Printer) Position() mmu.Position { return p.pos }
func (p *Printer) HomedXY() bool          { return p.homed }

func (p *Printer) MoveTo(pos mmu.Position, feedrate float64) {
	dist := math.Sqrt(sq(pos.X-p.pos.X) + sq(pos.Y-p.pos.Y) + sq(pos.Z-p.pos.Z))
	p.log.Debug("G1 %s F%.0f (%.1fmm)", pos, feedrate*60, dist)
	p.pos = pos
}

func sq(v float64) float64 { return v * v }

// Move queues a relative extruder move.
func (p *Printer) Move(distance, feedrate float64) {
	p.pending++
	p.extruded += distance
	p.log.Debug("G1 E%.2f F%.0f", distance, feedrate*60)
}

// Synchronize waits for queued moves, which here is immediate.
func (p *Printer) Synchronize() {
	if p.pending > 0 {
		p.log.Debug("M400 (%d moves)", p.pending)
	}
	p.pending = 0
}

// Extruded returns the net extruder travel in mm.
func (p *Printer) Extruded() float64 { return p.extruded }

func (p *Printer) Triggered() bool { return p.acc.FilamentAtSensor() }

func (p *Printer) StopPrint() {
	p.stopped = true
	p.log.Warn("Print stopped")
}

// PrintStopped reports whether StopPrint was called.
func (p *Printer) PrintStopped() bool { return p.stopped }

func (p *Printer) PowerOn() {
	p.powered = true
	p.log.Debug("MMU power on")
}

func (p *Printer) PowerOff() {
	p.powered = false
	p.log.Debug("MMU power off")
}

// Powered reports the MMU supply.
func (p *Printer) Powered() bool { return p.powered }

// Host returns the collaborators the orchestrator needs, backed by p.
// Input, ResetLine and Idle are left for the caller.
func (p *Printer) Host() mmu.Printer {
	return mmu.Printer{
		Motion:   p,
		Hotend:   p.Hotend,
		Extruder: p,
		Sensor:   p,
		Power:    p,
		Stopper:  p,
	}
}
