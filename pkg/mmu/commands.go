// Blocking MMU commands and the response wait loop
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mmu

import (
	"mmu2-host/pkg/errors"
	"mmu2-host/pkg/mmuerr"
	"mmu2-host/pkg/protocol"
)

// ejectRetractFeedrate is the extruder speed used before ejecting, mm/s.
const ejectRetractFeedrate = 2500.0 / 60

// ToolChange switches to slot. The G-code is expected to have rammed the
// old filament already. On error the toolhead is parked and the nozzle is
// allowed to cool until the operator resolves it.
func (m *MMU) ToolChange(slot uint8) error {
	const cmd = "tool_change"
	if err := m.begin(cmd, slot, true); err != nil {
		return err
	}
	m.pendingSlot = slot
	m.logic.ToolChange(slot)
	err := m.manageResponse(cmd, true, true)
	if err == nil {
		m.commitSlot(slot)
	}
	m.pendingSlot = NoSlot
	return m.end(cmd, slot, err)
}

// LoadFilament loads slot into the MMU only, not into the printer.
func (m *MMU) LoadFilament(slot uint8) error {
	const cmd = "load_filament"
	if err := m.begin(cmd, slot, true); err != nil {
		return err
	}
	m.logic.LoadFilament(slot)
	return m.end(cmd, slot, m.manageResponse(cmd, false, false))
}

// LoadToNozzle loads slot all the way to the nozzle, unloading the current
// filament first if one is loaded.
func (m *MMU) LoadToNozzle(slot uint8) error {
	const cmd = "load_to_nozzle"
	if err := m.begin(cmd, slot, true); err != nil {
		return err
	}
	if err := m.checkHot(cmd); err != nil {
		return m.end(cmd, slot, err)
	}
	if m.slot != NoSlot {
		m.executeSequence(rammingSequence)
	}
	m.pendingSlot = slot
	m.logic.ToolChange(slot)
	err := m.manageResponse(cmd, false, false)
	if err == nil {
		m.executeSequence(loadToNozzleSequence)
		m.commitSlot(slot)
	}
	m.pendingSlot = NoSlot
	return m.end(cmd, slot, err)
}

// LoadToFeeder loads slot only as far as the extruder gears. It does not
// need a hot nozzle.
func (m *MMU) LoadToFeeder(slot uint8) error {
	const cmd = "load_to_feeder"
	if err := m.begin(cmd, slot, true); err != nil {
		return err
	}
	m.printer.Extruder.Synchronize()
	m.pendingSlot = slot
	m.logic.ToolChange(slot)
	err := m.manageResponse(cmd, false, false)
	if err == nil {
		m.commitSlot(slot)
	}
	m.pendingSlot = NoSlot
	return m.end(cmd, slot, err)
}

// Unload rams and unloads the current filament back into the MMU.
func (m *MMU) Unload() error {
	const cmd = "unload"
	if err := m.begin(cmd, NoSlot, false); err != nil {
		return err
	}
	if err := m.checkHot(cmd); err != nil {
		return m.end(cmd, NoSlot, err)
	}
	m.executeSequence(rammingSequence)
	m.logic.UnloadFilament()
	err := m.manageResponse(cmd, false, true)
	if err == nil {
		m.slot = NoSlot
		m.pendingSlot = NoSlot
	}
	return m.end(cmd, NoSlot, err)
}

// Eject pushes the filament of slot out of the MMU. With recover set it
// then waits until the operator confirms the filament was removed.
func (m *MMU) Eject(slot uint8, recover bool) error {
	const cmd = "eject"
	if err := m.begin(cmd, slot, true); err != nil {
		return err
	}
	ex := m.printer.Extruder
	ex.Move(-m.cfg.EjectRetract, ejectRetractFeedrate)
	ex.Synchronize()

	m.logic.EjectFilament(slot)
	err := m.manageResponse(cmd, false, false)
	if err == nil {
		m.slot = NoSlot
		m.pendingSlot = NoSlot
		if recover {
			err = m.waitForConfirmation(cmd)
		}
	}
	return m.end(cmd, slot, err)
}

// Cut cuts the filament tip of slot. The filament must be unloaded from
// the printer.
func (m *MMU) Cut(slot uint8) error {
	const cmd = "cut"
	if err := m.begin(cmd, slot, true); err != nil {
		return err
	}
	m.logic.CutFilament(slot)
	return m.end(cmd, slot, m.manageResponse(cmd, false, true))
}

// Home homes the MMU axes.
func (m *MMU) Home(mode uint8) error {
	const cmd = "home"
	if err := m.begin(cmd, NoSlot, false); err != nil {
		return err
	}
	m.logic.Home(mode)
	return m.end(cmd, NoSlot, m.manageResponse(cmd, false, false))
}

// Button relays choice index (0 right, 1 middle, 2 left) to the MMU. It
// does not block and may be called from an observer.
func (m *MMU) Button(index int) error {
	if m.state == StateStopped {
		return errors.StoppedError("button")
	}
	if index < int(protocol.ButtonRight) || index > int(protocol.ButtonLeft) {
		return errors.InvalidArgError("button", "index", index)
	}
	m.pressButton(protocol.Button(index))
	return nil
}

// SetFilamentType records the filament type loaded in slot.
func (m *MMU) SetFilamentType(slot, typ uint8) error {
	const cmd = "set_filament_type"
	if m.inStep {
		return errors.BusyError(cmd)
	}
	if err := m.checkSlot(cmd, slot); err != nil {
		return err
	}
	if err := m.waitForReady(cmd); err != nil {
		return err
	}
	m.filamentTypes[slot] = typ
	return nil
}

func (m *MMU) checkSlot(cmd string, slot uint8) error {
	if int(slot) >= m.cfg.Slots {
		return errors.InvalidSlotError(cmd, int(slot), m.cfg.Slots)
	}
	return nil
}

// begin runs the checks common to every blocking command and reports the
// command start. Nothing is sent to the MMU when it fails.
func (m *MMU) begin(cmd string, slot uint8, needSlot bool) error {
	if m.inStep {
		return errors.BusyError(cmd)
	}
	if needSlot {
		if err := m.checkSlot(cmd, slot); err != nil {
			return err
		}
	}
	if err := m.waitForReady(cmd); err != nil {
		return err
	}
	m.retriesLeft = m.cfg.AutoRetries
	m.errorFresh = false
	m.running = cmd
	m.interrupted = false
	m.reporter.command(CommandReport{Name: cmd, Slot: slot, Phase: CommandBegin})
	return nil
}

func (m *MMU) end(cmd string, slot uint8, err error) error {
	m.running = ""
	m.interrupted = false
	m.reporter.command(CommandReport{Name: cmd, Slot: slot, Phase: CommandEnd, Err: err})
	return err
}

func (m *MMU) checkHot(cmd string) error {
	temp := m.printer.Hotend.Temperature()
	if temp < m.cfg.MinExtrudeTemp {
		return errors.ColdExtrudeError(cmd, temp, m.cfg.MinExtrudeTemp)
	}
	return nil
}

func (m *MMU) commitSlot(slot uint8) {
	m.previousSlot = m.slot
	m.slot = slot
	m.log.Info("Active slot %d", slot)
}

// waitForReady rejects commands while stopped and, while connecting, keeps
// stepping until the unit becomes active or the ready timeout expires.
func (m *MMU) waitForReady(cmd string) error {
	switch m.state {
	case StateActive:
		return nil
	case StateStopped:
		return errors.StoppedError(cmd)
	}
	deadline := m.now().Add(m.cfg.ReadyTimeout)
	for {
		m.Step()
		switch m.state {
		case StateActive:
			return nil
		case StateStopped:
			return errors.StoppedError(cmd)
		}
		if !m.now().Before(deadline) {
			m.lastError = protocol.MMUNotResponding
			if m.reporter.error(protocol.MMUNotResponding, SourcePrinter) {
				m.prompt()
			}
			return errors.NotReadyError(cmd)
		}
		m.idle()
		m.sleep(m.cfg.SampleInterval)
	}
}

// manageResponse steps until the running command finishes. While the MMU
// reports an error it retries automatically when allowed, otherwise it
// parks (moveAxes) and schedules a cooldown (coolDown) and keeps waiting
// for the operator. The printer is restored before returning.
func (m *MMU) manageResponse(cmd string, moveAxes, coolDown bool) error {
	for {
		m.Step()
		m.recovery.Tick()

		if m.state == StateStopped {
			m.restore()
			return errors.StoppedError(cmd)
		}
		if m.interrupted {
			m.restore()
			return errors.New(errors.ErrOperation, cmd+" interrupted by MMU reset")
		}

		switch m.lastStatus {
		case protocol.StepFinished:
			m.restore()
			return nil
		case protocol.StepError:
			fresh := m.errorFresh
			m.errorFresh = false
			if fresh && m.canAutoRetry() {
				m.retriesLeft--
				m.log.WithField("remaining", m.retriesLeft).Info("Retrying automatically")
				m.pressButton(protocol.ButtonMiddle)
			} else {
				m.recovery.SaveAndPark(moveAxes, coolDown)
			}
		}

		m.idle()
		m.sleep(m.cfg.SampleInterval)
	}
}

// pressButton relays b and lets a persisting error be reported again.
func (m *MMU) pressButton(b protocol.Button) {
	m.awaitingInput = false
	m.reporter.clearError()
	m.logic.Button(b)
}

func (m *MMU) canAutoRetry() bool {
	if m.retriesLeft <= 0 {
		return false
	}
	btns := mmuerr.Classify(m.lastError).Buttons()
	return btns.At(0) == mmuerr.ActionRetry || btns.At(1) == mmuerr.ActionRetry
}

func (m *MMU) restore() {
	m.recovery.ResumeHotendTemp()
	m.recovery.ResumeUnpark()
}

// waitForConfirmation steps until the operator makes any selection.
func (m *MMU) waitForConfirmation(cmd string) error {
	if m.printer.Input == nil {
		return nil
	}
	m.printer.Input.DiscardSelections()
	m.log.Info("Remove the ejected filament and confirm")
	for {
		if _, ok := m.printer.Input.PollSelection(); ok {
			return nil
		}
		if !m.waitIteration() {
			return errors.StoppedError(cmd)
		}
	}
}
