// Progress reactor: extruder moves keyed to MMU progress
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

import "mmu2-host/pkg/protocol"

// reaction is what the host does when a progress code first appears
// (onEnter) and on every later step that repeats it (onRepeat).
type reaction struct {
	onEnter  func(m *MMU)
	onRepeat func(m *MMU)
}

var noReaction = reaction{}

// reactions has an entry for every progress code.
var reactions = map[protocol.ProgressCode]reaction{
	protocol.ProgressOK: {onEnter: (*MMU).clearLoadFlags},

	protocol.EngagingIdler:     noReaction,
	protocol.DisengagingIdler:  noReaction,
	protocol.UnloadingToFinda:  {onEnter: (*MMU).assistUnload},
	protocol.UnloadingToPulley: noReaction,
	protocol.FeedingToFinda:    noReaction,
	protocol.FeedingToBondtech: {onEnter: (*MMU).startLoad, onRepeat: (*MMU).feedPastSensor},
	protocol.FeedingToNozzle:   noReaction,
	protocol.AvoidingGrind:     noReaction,
	protocol.FinishingMoves:    noReaction,

	protocol.ERRDisengagingIdler: noReaction,
	protocol.ERREngagingIdler:    noReaction,
	protocol.ERRWaitingForUser:   noReaction,
	protocol.ERRInternal:         noReaction,
	protocol.ERRHelpingFilament:  noReaction,
	protocol.ERRTMCFailed:        noReaction,

	protocol.UnloadingFilament:     noReaction,
	protocol.LoadingFilament:       noReaction,
	protocol.SelectingFilamentSlot: noReaction,
	protocol.PreparingBlade:        noReaction,
	protocol.PushingFilament:       noReaction,
	protocol.PerformingCut:         noReaction,
	protocol.ReturningSelector:     noReaction,
	protocol.ParkingSelector:       noReaction,
	protocol.EjectingFilament:      noReaction,
	protocol.RetractingFromFinda:   noReaction,
	protocol.ProgressHoming:        noReaction,
	protocol.MovingSelector:        noReaction,
	protocol.FeedingToFSensor:      noReaction,
}

func (m *MMU) react(pc protocol.ProgressCode, entered bool) {
	r, ok := reactions[pc]
	if !ok {
		m.log.Debug("no reaction for progress %d", uint8(pc))
		return
	}
	fn := r.onRepeat
	if entered {
		fn = r.onEnter
	}
	if fn != nil {
		fn(m)
	}
}

func (m *MMU) clearLoadFlags() {
	m.loadStarted = false
	m.sensorFed = false
}

func (m *MMU) startLoad() {
	m.loadStarted = true
	m.sensorFed = false
	m.printer.Extruder.Synchronize()
}

// feedPastSensor pushes the filament into the extruder gears once the
// printer's filament sensor sees it.
func (m *MMU) feedPastSensor() {
	if !m.loadStarted || m.sensorFed || m.printer.Sensor == nil {
		return
	}
	if !m.printer.Sensor.Triggered() {
		return
	}
	m.sensorFed = true
	m.printer.Extruder.Move(m.cfg.FSensorExtraFeed, m.cfg.LoadFeedrate)
	m.log.Debug("Filament sensor triggered, extra feed %.1fmm", m.cfg.FSensorExtraFeed)
}

// assistUnload pulls filament out of the extruder gears while the MMU
// retracts it, as long as the printer's sensor still sees it.
func (m *MMU) assistUnload() {
	switch m.logic.Command() {
	case protocol.UnloadFilament, protocol.ToolChange:
	default:
		return
	}
	if m.printer.Sensor == nil || !m.printer.Sensor.Triggered() {
		return
	}
	m.printer.Extruder.Move(-m.cfg.UnloadAssistLength, m.cfg.LoadFeedrate)
}
