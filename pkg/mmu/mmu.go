// Package mmu orchestrates a multi-material filament unit: it tracks the
// unit's availability, turns filament intents into protocol requests, waits
// for their outcome while the operator resolves errors, and parks or cools
// the printer while an error is pending.
//
// An MMU is owned by a single control goroutine. Step must be called
// regularly from that goroutine; the blocking commands step internally
// until they complete.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package mmu

import (
	"time"

	"mmu2-host/pkg/config"
	"mmu2-host/pkg/errors"
	"mmu2-host/pkg/log"
	"mmu2-host/pkg/mmuerr"
	"mmu2-host/pkg/protocol"
)

// MMU is the orchestrator for one attached unit.
type MMU struct {
	cfg     config.MMU
	logic   protocol.Logic
	printer Printer
	log     *log.Logger
	now     func() time.Time
	sleep   func(time.Duration)

	reporter *reporter
	recovery *Recovery

	state      State
	lastStatus protocol.StepStatus
	lastError  protocol.ErrorCode

	slot          uint8
	previousSlot  uint8
	pendingSlot   uint8
	filamentTypes []uint8

	inStep bool
	// awaitingInput is set while the shown error has not been answered.
	awaitingInput bool
	// errorFresh is set when a step reported a new error, until the wait
	// loop consumes it.
	errorFresh  bool
	retriesLeft int

	// running is the name of the blocking command in progress.
	running string
	// interrupted is set when the MMU was reset under a running command.
	interrupted bool

	loadStarted bool
	sensorFed   bool
}

// Option customises an MMU.
type Option func(*MMU)

// WithLogger sets the logger. The default is the "MMU2" component logger.
func WithLogger(l *log.Logger) Option {
	return func(m *MMU) { m.log = l }
}

// WithObserver attaches an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(m *MMU) { m.reporter.observers = append(m.reporter.observers, o) }
}

// WithClock replaces the time source and the sleep used between wait-loop
// iterations.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(m *MMU) {
		m.now = now
		m.sleep = sleep
	}
}

// New builds an MMU. When cfg.Enabled the unit is started right away and
// begins in StateConnecting, otherwise it begins in StateStopped.
func New(cfg config.MMU, logic protocol.Logic, printer Printer, opts ...Option) (*MMU, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case logic == nil:
		return nil, errors.InvalidArgError("new", "logic", nil)
	case printer.Motion == nil:
		return nil, errors.InvalidArgError("new", "motion", nil)
	case printer.Hotend == nil:
		return nil, errors.InvalidArgError("new", "hotend", nil)
	case printer.Extruder == nil:
		return nil, errors.InvalidArgError("new", "extruder", nil)
	}

	m := &MMU{
		cfg:           cfg,
		logic:         logic,
		printer:       printer,
		log:           log.GetLogger("MMU2"),
		now:           time.Now,
		sleep:         time.Sleep,
		reporter:      &reporter{},
		state:         StateStopped,
		lastError:     protocol.ErrorOK,
		slot:          NoSlot,
		previousSlot:  NoSlot,
		pendingSlot:   NoSlot,
		filamentTypes: make([]uint8, cfg.Slots),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reporter.log = m.log
	m.recovery = newRecovery(cfg, printer.Motion, printer.Hotend, m.log, m.now, m.waitIteration)

	if cfg.Enabled {
		m.Start()
	}
	return m, nil
}

// Start powers the unit and begins the handshake. No-op unless stopped.
func (m *MMU) Start() {
	if m.state != StateStopped {
		return
	}
	if m.printer.Power != nil {
		m.printer.Power.PowerOn()
	}
	m.logic.Start()
	m.lastError = protocol.ErrorOK
	m.awaitingInput = false
	m.reporter.clearError()
	m.setState(StateConnecting)
}

// Stop halts communication and powers the unit off. No-op when stopped.
func (m *MMU) Stop() {
	if m.state == StateStopped {
		return
	}
	m.logic.Stop()
	if m.printer.Power != nil {
		m.printer.Power.PowerOff()
	}
	m.awaitingInput = false
	m.setState(StateStopped)
}

// Reset resets the unit with the given strength. A command in progress
// fails with OPERATION_FAILED.
func (m *MMU) Reset(level ResetForm) error {
	busy := m.running != "" && m.state != StateStopped
	switch level {
	case ResetSoftware:
		if m.state == StateStopped {
			return errors.StoppedError("reset")
		}
		m.log.Info("Software reset")
		m.logic.ResetMMU()
		m.setState(StateConnecting)
	case ResetPin:
		if m.printer.ResetLine == nil {
			m.log.Debug("No reset line, falling back to software reset")
			return m.Reset(ResetSoftware)
		}
		m.log.Info("Pulsing reset line")
		if err := m.printer.ResetLine.Pulse(); err != nil {
			return errors.HardwareError("reset line", err)
		}
		if m.state != StateStopped {
			m.logic.Stop()
			m.logic.Start()
			m.setState(StateConnecting)
		}
	case ResetPowerCycle:
		m.log.Info("Power cycle")
		m.Stop()
		m.sleep(m.cfg.PowerCycleSettle)
		m.Start()
	default:
		return errors.InvalidArgError("reset", "level", level)
	}
	if busy {
		m.interrupted = true
	}
	return nil
}

func (m *MMU) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if s == StateActive {
		m.log.Info("MMU active, firmware %s", m.logic.FirmwareVersion())
	}
	m.reporter.state(s)
}

// Step performs one non-blocking unit of protocol work: it applies any
// pending operator choice, steps the protocol logic and reports the
// outcome. It returns false without doing anything when called re-entrantly.
func (m *MMU) Step() bool {
	if m.inStep {
		return false
	}
	m.inStep = true
	defer func() { m.inStep = false }()

	m.checkUserInput()
	if m.state == StateStopped {
		return true
	}

	status := m.logic.Step()
	m.lastStatus = status
	switch status {
	case protocol.StepRunning, protocol.StepFinished:
		if m.state == StateConnecting && m.logic.Running() {
			m.setState(StateActive)
		}
		if m.lastError.IsError() {
			m.lastError = protocol.ErrorOK
			m.awaitingInput = false
			m.reporter.clearError()
		}
		pc := m.logic.Progress()
		m.react(pc, m.reporter.progress(m.logic.Command(), pc))
	case protocol.StepError:
		ec := m.logic.Error()
		m.lastError = ec
		if m.reporter.error(ec, errorSource(ec)) {
			m.errorFresh = true
			m.prompt()
		}
	}
	return true
}

// prompt starts waiting for an answer to a newly shown error screen.
func (m *MMU) prompt() {
	if m.printer.Input != nil {
		m.printer.Input.DiscardSelections()
	}
	m.awaitingInput = true
}

// checkUserInput resolves the operator's choice on the shown error screen.
func (m *MMU) checkUserInput() {
	if !m.awaitingInput || m.printer.Input == nil {
		return
	}
	idx, ok := m.printer.Input.PollSelection()
	if !ok {
		return
	}
	cat := mmuerr.Classify(m.lastError)
	action := cat.Buttons().At(idx)
	if action == mmuerr.ActionNone {
		m.log.Debug("Ignoring selection %d on %s", idx, cat)
		return
	}
	m.awaitingInput = false
	m.log.WithField("error", cat.Code()).Info("Operator chose %s", action)

	switch action {
	case mmuerr.ActionRetry:
		m.recovery.ResumeHotendTemp()
		m.pressButton(protocol.ButtonMiddle)
	case mmuerr.ActionContinue:
		m.recovery.ResumeHotendTemp()
		m.pressButton(protocol.ButtonRight)
	case mmuerr.ActionUnload:
		m.recovery.ResumeHotendTemp()
		m.pressButton(protocol.ButtonLeft)
	case mmuerr.ActionResetMMU:
		if err := m.Reset(ResetPin); err != nil {
			m.log.WithError(err).Error("Reset failed")
		}
	case mmuerr.ActionDisableMMU:
		m.Stop()
	case mmuerr.ActionStopPrint:
		if m.printer.Stopper != nil {
			m.printer.Stopper.StopPrint()
		} else {
			m.log.Warn("Stop print requested but no print stopper is attached")
		}
	}
}

func (m *MMU) idle() {
	if m.printer.Idle != nil {
		m.printer.Idle()
	}
}

// waitIteration is one cooperative pass of a blocking wait.
func (m *MMU) waitIteration() bool {
	m.Step()
	m.recovery.Tick()
	m.idle()
	m.sleep(m.cfg.SampleInterval)
	return m.state != StateStopped
}

// Queries

// State returns the current availability state.
func (m *MMU) State() State { return m.state }

// Slot returns the active slot or NoSlot.
func (m *MMU) Slot() uint8 { return m.slot }

// PreviousSlot returns the slot active before the last change, or NoSlot.
func (m *MMU) PreviousSlot() uint8 { return m.previousSlot }

// PendingSlot returns the target of the tool change in progress, or NoSlot.
func (m *MMU) PendingSlot() uint8 { return m.pendingSlot }

// FindaDetectsFilament reports the MMU's own filament sensor.
func (m *MMU) FindaDetectsFilament() bool { return m.logic.FindaPressed() }

// ErrorCode returns the error currently shown, or protocol.ErrorOK.
func (m *MMU) ErrorCode() protocol.ErrorCode { return m.lastError }

// Saved returns what the recovery controller currently holds.
func (m *MMU) Saved() SavedState { return m.recovery.Saved() }

// Recovery exposes the recovery controller.
func (m *MMU) Recovery() *Recovery { return m.recovery }

// FirmwareVersion returns the unit's firmware version, zero unless active.
func (m *MMU) FirmwareVersion() protocol.Version {
	if m.state != StateActive {
		return protocol.Version{}
	}
	return m.logic.FirmwareVersion()
}

// FilamentType returns the type recorded for slot.
func (m *MMU) FilamentType(slot uint8) (uint8, error) {
	if int(slot) >= len(m.filamentTypes) {
		return 0, errors.InvalidSlotError("filament_type", int(slot), m.cfg.Slots)
	}
	return m.filamentTypes[slot], nil
}
