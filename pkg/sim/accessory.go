// Package sim provides a simulated MMU and printer so the orchestrator can
// run without hardware.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package sim

import (
	"mmu2-host/pkg/log"
	"mmu2-host/pkg/protocol"
)

const noSlot uint8 = 0xFF

// SupportedMajor is the firmware major version the host accepts.
const SupportedMajor = 3

// AccessoryConfig shapes the simulated unit.
type AccessoryConfig struct {
	Slots uint8
	// HandshakeSteps is the number of steps the handshake takes.
	HandshakeSteps int
	// StageSteps is the number of steps spent in each progress stage.
	StageSteps int
	Version    protocol.Version
}

// DefaultAccessoryConfig returns a five slot unit running firmware 3.0.2.
func DefaultAccessoryConfig() AccessoryConfig {
	return AccessoryConfig{
		Slots:          5,
		HandshakeSteps: 3,
		StageSteps:     4,
		Version:        protocol.Version{Major: 3, Minor: 0, Build: 2},
	}
}

// Fault makes the next Times entries into Stage of Command fail with Code.
// A zero Command matches any command.
type Fault struct {
	Command protocol.Command
	Stage   protocol.ProgressCode
	Code    protocol.ErrorCode
	Times   int
}

// Accessory is a step-driven model of the MMU and its protocol logic. It
// implements protocol.Logic and must be used from one goroutine.
type Accessory struct {
	cfg AccessoryConfig
	log *log.Logger

	started   bool
	running   bool
	handshake int

	cmd       protocol.Command
	arg       uint8
	stages    []protocol.ProgressCode
	stage     int
	stageLeft int
	progress  protocol.ProgressCode
	err       protocol.ErrorCode

	faults []Fault

	loaded   uint8
	atSensor bool
}

// NewAccessory returns a powered-down unit with no filament loaded.
func NewAccessory(cfg AccessoryConfig) *Accessory {
	if cfg.StageSteps < 1 {
		cfg.StageSteps = 1
	}
	return &Accessory{
		cfg:    cfg,
		log:    log.GetLogger("sim.mmu"),
		err:    protocol.ErrorOK,
		loaded: noSlot,
	}
}

// SetLogger replaces the logger.
func (a *Accessory) SetLogger(l *log.Logger) { a.log = l }

// Inject queues a fault.
func (a *Accessory) Inject(f Fault) {
	if f.Times < 1 {
		f.Times = 1
	}
	a.faults = append(a.faults, f)
}

// Loaded returns the slot whose filament is past FINDA.
func (a *Accessory) Loaded() (uint8, bool) { return a.loaded, a.loaded != noSlot }

// FilamentAtSensor reports whether the filament reached the printer's
// filament sensor.
func (a *Accessory) FilamentAtSensor() bool { return a.atSensor }

func (a *Accessory) Start() {
	if a.started {
		return
	}
	a.started = true
	a.restart()
}

func (a *Accessory) Stop() {
	a.started = false
	a.running = false
	a.abort()
	a.err = protocol.ErrorOK
}

// ResetMMU restarts the firmware. The command in progress is lost.
func (a *Accessory) ResetMMU() {
	if !a.started {
		return
	}
	a.log.Info("Firmware reset")
	a.restart()
}

func (a *Accessory) restart() {
	a.running = false
	a.handshake = a.cfg.HandshakeSteps
	a.abort()
	a.err = protocol.ErrorOK
}

func (a *Accessory) Step() protocol.StepStatus {
	if !a.started {
		return protocol.StepRunning
	}
	if a.err.IsError() {
		return protocol.StepError
	}
	if !a.running {
		return a.stepHandshake()
	}
	if a.cmd == protocol.NoCommand {
		a.progress = protocol.ProgressOK
		return protocol.StepFinished
	}

	if a.stageLeft == 0 {
		if code, ok := a.takeFault(); ok {
			a.fail(code)
			return protocol.StepError
		}
		a.stageLeft = a.cfg.StageSteps
	}
	a.progress = a.stages[a.stage]
	a.stageLeft--
	if a.progress == protocol.FeedingToBondtech && a.stageLeft <= a.cfg.StageSteps/2 {
		a.atSensor = true
	}
	if a.stageLeft > 0 {
		return protocol.StepRunning
	}
	if a.progress == protocol.UnloadingToFinda {
		a.atSensor = false
	}
	a.stage++
	if a.stage < len(a.stages) {
		return protocol.StepRunning
	}
	a.finish()
	return protocol.StepFinished
}

func (a *Accessory) stepHandshake() protocol.StepStatus {
	a.progress = protocol.ProgressOK
	if a.handshake > 0 {
		a.handshake--
	}
	if a.handshake > 0 {
		return protocol.StepRunning
	}
	if a.cfg.Version.Major != SupportedMajor {
		a.fail(protocol.VersionMismatch)
		return protocol.StepError
	}
	a.running = true
	a.log.Info("Handshake complete, firmware %s", a.cfg.Version)
	return protocol.StepRunning
}

func (a *Accessory) takeFault() (protocol.ErrorCode, bool) {
	stage := a.stages[a.stage]
	for i := range a.faults {
		f := &a.faults[i]
		if f.Times == 0 || f.Stage != stage {
			continue
		}
		if f.Command != protocol.NoCommand && f.Command != a.cmd {
			continue
		}
		f.Times--
		return f.Code, true
	}
	return 0, false
}

func (a *Accessory) fail(code protocol.ErrorCode) {
	a.err = code
	a.progress = protocol.ERRWaitingForUser
	a.log.WithField("code", code.String()).Warn("Command %s failed", a.cmd)
}

func (a *Accessory) finish() {
	switch a.cmd {
	case protocol.ToolChange:
		a.loaded = a.arg
		a.atSensor = true
	case protocol.UnloadFilament, protocol.EjectFilament:
		a.loaded = noSlot
		a.atSensor = false
	}
	a.log.Debug("Command %s finished", a.cmd)
	a.abort()
}

func (a *Accessory) restartLoad() {
	for i, pc := range a.stages {
		if pc == protocol.SelectingFilamentSlot {
			a.stages = a.stages[i:]
			break
		}
	}
	a.stage = 0
	a.stageLeft = 0
}

func (a *Accessory) abort() {
	a.cmd = protocol.NoCommand
	a.stages = nil
	a.stage = 0
	a.stageLeft = 0
	a.progress = protocol.ProgressOK
}

func (a *Accessory) Running() bool                     { return a.running }
func (a *Accessory) Error() protocol.ErrorCode         { return a.err }
func (a *Accessory) Progress() protocol.ProgressCode   { return a.progress }
func (a *Accessory) Command() protocol.Command         { return a.cmd }
func (a *Accessory) FindaPressed() bool                { return a.loaded != noSlot }
func (a *Accessory) FirmwareVersion() protocol.Version { return a.cfg.Version }

// request starts cmd unless the unit is busy or the slot is invalid, in
// which case the error is latched like the firmware does.
func (a *Accessory) request(cmd protocol.Command, arg uint8, stages ...protocol.ProgressCode) {
	if !a.running {
		a.log.Debug("Dropping %s request, not connected", cmd)
		return
	}
	if a.cmd != protocol.NoCommand || a.err.IsError() {
		a.cmd = cmd
		a.fail(protocol.QueueFull)
		return
	}
	a.abort()
	a.cmd, a.arg, a.stages = cmd, arg, stages
	a.log.Debug("Request %c%d", byte(cmd), arg)
	switch {
	case cmd != protocol.UnloadFilament && cmd != protocol.Homing && arg >= a.cfg.Slots:
		a.fail(protocol.InvalidTool)
	case cmd == protocol.LoadFilament && a.loaded != noSlot:
		a.fail(protocol.FilamentAlreadyLoaded)
	}
}

func (a *Accessory) unloadStages() []protocol.ProgressCode {
	if a.loaded == noSlot {
		return nil
	}
	return []protocol.ProgressCode{protocol.UnloadingToFinda, protocol.UnloadingToPulley}
}

func (a *Accessory) ToolChange(slot uint8) {
	stages := append(a.unloadStages(),
		protocol.SelectingFilamentSlot,
		protocol.FeedingToFinda,
		protocol.FeedingToBondtech,
		protocol.DisengagingIdler,
	)
	a.request(protocol.ToolChange, slot, stages...)
}

func (a *Accessory) LoadFilament(slot uint8) {
	a.request(protocol.LoadFilament, slot,
		protocol.SelectingFilamentSlot,
		protocol.FeedingToFinda,
		protocol.RetractingFromFinda,
		protocol.DisengagingIdler,
	)
}

func (a *Accessory) UnloadFilament() {
	a.request(protocol.UnloadFilament, 0,
		protocol.UnloadingToFinda,
		protocol.UnloadingToPulley,
		protocol.DisengagingIdler,
	)
}

func (a *Accessory) EjectFilament(slot uint8) {
	stages := append(a.unloadStages(),
		protocol.ParkingSelector,
		protocol.EjectingFilament,
		protocol.DisengagingIdler,
	)
	a.request(protocol.EjectFilament, slot, stages...)
}

func (a *Accessory) CutFilament(slot uint8) {
	a.request(protocol.CutFilament, slot,
		protocol.SelectingFilamentSlot,
		protocol.PreparingBlade,
		protocol.PushingFilament,
		protocol.PerformingCut,
		protocol.ReturningSelector,
	)
}

func (a *Accessory) Home(mode uint8) {
	a.request(protocol.Homing, mode,
		protocol.ProgressHoming,
		protocol.MovingSelector,
	)
}

// Button resolves the latched error: middle retries the failed stage,
// right skips to the end of the command, left unloads. An unload during
// a tool change or load leaves that command failed.
func (a *Accessory) Button(b protocol.Button) {
	if !a.err.IsError() {
		a.log.Debug("Ignoring button %s, no error", b)
		return
	}
	switch a.err {
	case protocol.QueueFull, protocol.InvalidTool, protocol.VersionMismatch:
		a.log.Debug("Button %s cannot resolve %s", b, a.err)
		return
	}
	code := a.err
	a.err = protocol.ErrorOK
	switch b {
	case protocol.ButtonMiddle:
		a.log.Info("Retry")
		if a.cmd == protocol.NoCommand {
			return
		}
		if a.cmd == protocol.LoadFilament && a.loaded != noSlot {
			a.fail(protocol.FilamentAlreadyLoaded)
		}
	case protocol.ButtonRight:
		a.log.Info("Continue")
		a.finish()
	case protocol.ButtonLeft:
		a.log.Info("Unload")
		a.loaded = noSlot
		a.atSensor = false
		switch a.cmd {
		case protocol.ToolChange, protocol.LoadFilament:
			// The load did not happen. The command stays failed until a
			// retry feeds the slot again from slot selection.
			a.restartLoad()
			a.fail(code)
		default:
			a.abort()
		}
	default:
		a.log.Debug("Unknown button %s", b)
	}
}
