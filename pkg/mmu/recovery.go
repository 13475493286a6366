// Error recovery: park, cool down and resume
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

import (
	"time"

	"mmu2-host/pkg/config"
	"mmu2-host/pkg/log"
)

// resumeTempTolerance is how close the nozzle must get to the restored
// target before printing continues.
const resumeTempTolerance = 5.0

// Recovery parks the toolhead and lets the nozzle cool while an MMU error
// waits for the operator, and undoes both afterwards. Every operation is
// idempotent and safe when nothing was saved.
type Recovery struct {
	cfg    config.MMU
	motion Motion
	hotend Hotend
	log    *log.Logger
	now    func() time.Time

	// wait runs one cooperative iteration while the nozzle reheats and
	// returns false to give up waiting.
	wait func() bool

	saved        SavedState
	resumePos    Position
	resumeTemp   float64
	pendingSince time.Time
}

func newRecovery(cfg config.MMU, motion Motion, hotend Hotend, logger *log.Logger, now func() time.Time, wait func() bool) *Recovery {
	return &Recovery{
		cfg:    cfg,
		motion: motion,
		hotend: hotend,
		log:    logger,
		now:    now,
		wait:   wait,
	}
}

// Saved returns the current saved-state flags.
func (r *Recovery) Saved() SavedState { return r.saved }

// ResumePosition returns the position restored by ResumeUnpark. Valid only
// while SavedParkExtruder is set.
func (r *Recovery) ResumePosition() (Position, bool) {
	return r.resumePos, r.saved.Has(SavedParkExtruder)
}

// ResumeTemp returns the target restored by ResumeHotendTemp. Valid only
// while a cooldown flag is set.
func (r *Recovery) ResumeTemp() (float64, bool) {
	return r.resumeTemp, r.saved.Has(SavedCooldown | SavedCooldownPending)
}

// SaveAndPark snapshots and parks the toolhead when moveAxes is set and
// schedules a nozzle cooldown when coolDown is set. A snapshot that is
// already held is never overwritten.
func (r *Recovery) SaveAndPark(moveAxes, coolDown bool) {
	if moveAxes && !r.saved.Has(SavedParkExtruder) {
		r.resumePos = r.motion.Position()
		r.saved |= SavedParkExtruder

		lifted := r.resumePos
		lifted.Z += r.cfg.ParkZLift
		r.motion.MoveTo(lifted, r.cfg.ParkFeedrateZ)
		if r.motion.HomedXY() {
			r.motion.MoveTo(Position{X: r.cfg.ParkX, Y: r.cfg.ParkY, Z: lifted.Z}, r.cfg.ParkFeedrateXY)
		}
		r.log.WithField("resume", r.resumePos.String()).Info("Saved position, toolhead parked")
	}
	if coolDown && !r.saved.Has(SavedCooldown|SavedCooldownPending) {
		r.resumeTemp = r.hotend.TargetTemp()
		r.saved |= SavedCooldownPending
		r.pendingSince = r.now()
		r.log.WithField("target", r.resumeTemp).Info("Saved hotend temperature, cooldown in %s", r.cfg.CooldownTimeout)
	}
}

// Tick turns a pending cooldown into an actual one once the safety timer
// expires.
func (r *Recovery) Tick() {
	if !r.saved.Has(SavedCooldownPending) {
		return
	}
	if r.now().Sub(r.pendingSince) < r.cfg.CooldownTimeout {
		return
	}
	r.hotend.SetTargetTemp(0)
	r.saved = r.saved&^SavedCooldownPending | SavedCooldown
	r.log.Warn("Operator did not respond, hotend heater switched off")
}

// ResumeHotendTemp cancels a pending cooldown, or restores the saved target
// after an actual cooldown and waits for the nozzle to reheat.
func (r *Recovery) ResumeHotendTemp() {
	if r.saved.Has(SavedCooldownPending) {
		r.saved &^= SavedCooldownPending
		return
	}
	if !r.saved.Has(SavedCooldown) {
		return
	}
	r.saved &^= SavedCooldown
	r.hotend.SetTargetTemp(r.resumeTemp)
	r.log.WithField("target", r.resumeTemp).Info("Restoring hotend temperature")
	for r.hotend.Temperature() < r.resumeTemp-resumeTempTolerance {
		if !r.wait() {
			r.log.Warn("Stopped waiting for hotend to reheat")
			return
		}
	}
	r.log.Info("Hotend temperature restored")
}

// ResumeUnpark returns the toolhead to the saved position, XY first.
func (r *Recovery) ResumeUnpark() {
	if !r.saved.Has(SavedParkExtruder) {
		return
	}
	r.saved &^= SavedParkExtruder
	cur := r.motion.Position()
	r.motion.MoveTo(Position{X: r.resumePos.X, Y: r.resumePos.Y, Z: cur.Z}, r.cfg.ParkFeedrateXY)
	r.motion.MoveTo(r.resumePos, r.cfg.ParkFeedrateZ)
	r.log.WithField("position", r.resumePos.String()).Info("Resumed position")
}
