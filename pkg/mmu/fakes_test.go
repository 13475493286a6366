package mmu

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"mmu2-host/pkg/config"
	"mmu2-host/pkg/log"
	"mmu2-host/pkg/protocol"
)

type stepResult struct {
	status   protocol.StepStatus
	progress protocol.ProgressCode
	err      protocol.ErrorCode
}

func running(pc protocol.ProgressCode) stepResult {
	return stepResult{status: protocol.StepRunning, progress: pc}
}

func failed(ec protocol.ErrorCode) stepResult {
	return stepResult{status: protocol.StepError, progress: protocol.ERRWaitingForUser, err: ec}
}

var finished = stepResult{status: protocol.StepFinished, progress: protocol.ProgressOK}

// fakeLogic plays back scripted step results. When the script is empty it
// keeps returning fallback.
type fakeLogic struct {
	handshake int
	running   bool

	script   []stepResult
	fallback stepResult

	cur      stepResult
	cmd      protocol.Command
	finda    bool
	version  protocol.Version
	requests []string
	buttons  []protocol.Button

	starts, stops, resets, steps int

	onButton func(protocol.Button)
	onStep   func()
}

func newFakeLogic() *fakeLogic {
	return &fakeLogic{handshake: 1, fallback: finished, version: protocol.Version{Major: 3, Minor: 0, Build: 2}}
}

func (f *fakeLogic) Start() { f.starts++ }
func (f *fakeLogic) Stop()  { f.stops++; f.running = false }

func (f *fakeLogic) Step() protocol.StepStatus {
	f.steps++
	if f.onStep != nil {
		f.onStep()
	}
	if !f.running {
		if f.handshake > 0 {
			f.handshake--
		}
		if f.handshake == 0 {
			f.running = true
		}
		f.cur = running(protocol.ProgressOK)
		return protocol.StepRunning
	}
	if len(f.script) > 0 {
		f.cur, f.script = f.script[0], f.script[1:]
	} else {
		f.cur = f.fallback
	}
	if f.cur.status == protocol.StepFinished {
		f.cmd = protocol.NoCommand
	}
	return f.cur.status
}

func (f *fakeLogic) Running() bool                     { return f.running }
func (f *fakeLogic) Error() protocol.ErrorCode         { return f.cur.err }
func (f *fakeLogic) Progress() protocol.ProgressCode   { return f.cur.progress }
func (f *fakeLogic) Command() protocol.Command         { return f.cmd }
func (f *fakeLogic) FindaPressed() bool                { return f.finda }
func (f *fakeLogic) FirmwareVersion() protocol.Version { return f.version }

func (f *fakeLogic) request(cmd protocol.Command, arg int) {
	f.cmd = cmd
	f.requests = append(f.requests, fmt.Sprintf("%c%d", byte(cmd), arg))
}

func (f *fakeLogic) ToolChange(slot uint8)    { f.request(protocol.ToolChange, int(slot)) }
func (f *fakeLogic) LoadFilament(slot uint8)  { f.request(protocol.LoadFilament, int(slot)) }
func (f *fakeLogic) UnloadFilament()          { f.request(protocol.UnloadFilament, 0) }
func (f *fakeLogic) EjectFilament(slot uint8) { f.request(protocol.EjectFilament, int(slot)) }
func (f *fakeLogic) CutFilament(slot uint8)   { f.request(protocol.CutFilament, int(slot)) }
func (f *fakeLogic) Home(mode uint8)          { f.request(protocol.Homing, int(mode)) }
func (f *fakeLogic) ResetMMU()                { f.resets++ }

func (f *fakeLogic) Button(b protocol.Button) {
	f.buttons = append(f.buttons, b)
	if f.onButton != nil {
		f.onButton(b)
	}
}

type move struct {
	pos      Position
	feedrate float64
}

type fakeMotion struct {
	pos   Position
	homed bool
	moves []move
}

func (f *fakeMotion) Position() Position { return f.pos }
func (f *fakeMotion) HomedXY() bool      { return f.homed }
func (f *fakeMotion) MoveTo(pos Position, feedrate float64) {
	f.pos = pos
	f.moves = append(f.moves, move{pos, feedrate})
}

// fakeHotend heats by heatRate per Temperature call while below target.
type fakeHotend struct {
	target   float64
	temp     float64
	heatRate float64
	targets  []float64
}

func (f *fakeHotend) TargetTemp() float64 { return f.target }
func (f *fakeHotend) SetTargetTemp(c float64) {
	f.target = c
	f.targets = append(f.targets, c)
}
func (f *fakeHotend) Temperature() float64 {
	if f.temp < f.target {
		f.temp += f.heatRate
		if f.temp > f.target {
			f.temp = f.target
		}
	}
	return f.temp
}

type fakeExtruder struct {
	moves []extruderStep
	syncs int
}

func (f *fakeExtruder) Move(d, fr float64) { f.moves = append(f.moves, extruderStep{d, fr}) }
func (f *fakeExtruder) Synchronize()       { f.syncs++ }

type fakeSensor struct{ triggered bool }

func (f *fakeSensor) Triggered() bool { return f.triggered }

type fakeInput struct {
	queue     []int
	discarded int
}

func (f *fakeInput) DiscardSelections() {
	f.discarded += len(f.queue)
	f.queue = nil
}

func (f *fakeInput) PollSelection() (int, bool) {
	if len(f.queue) == 0 {
		return 0, false
	}
	idx := f.queue[0]
	f.queue = f.queue[1:]
	return idx, true
}

type fakePower struct{ on, off int }

func (f *fakePower) PowerOn()  { f.on++ }
func (f *fakePower) PowerOff() { f.off++ }

type fakeResetLine struct {
	pulses int
	err    error
}

func (f *fakeResetLine) Pulse() error { f.pulses++; return f.err }

type fakeStopper struct{ stops int }

func (f *fakeStopper) StopPrint() { f.stops++ }

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) sleep(d time.Duration) {
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
}

// recorder collects observer events.
type recorder struct {
	errors   []ErrorReport
	progress []ProgressReport
	commands []CommandReport
	states   []State
}

func (r *recorder) OnError(e ErrorReport)       { r.errors = append(r.errors, e) }
func (r *recorder) OnProgress(p ProgressReport) { r.progress = append(r.progress, p) }
func (r *recorder) OnCommand(c CommandReport)   { r.commands = append(r.commands, c) }
func (r *recorder) OnState(s State)             { r.states = append(r.states, s) }

type harness struct {
	mmu      *MMU
	logic    *fakeLogic
	motion   *fakeMotion
	hotend   *fakeHotend
	extruder *fakeExtruder
	sensor   *fakeSensor
	input    *fakeInput
	power    *fakePower
	reset    *fakeResetLine
	stopper  *fakeStopper
	clock    *fakeClock
	rec      *recorder
	logBuf   *bytes.Buffer
	idles    int
	onIdle   func()
}

func testConfig() config.MMU {
	cfg := config.DefaultMMU()
	cfg.ReadyTimeout = time.Second
	cfg.SampleInterval = 100 * time.Millisecond
	cfg.CooldownTimeout = time.Minute
	return cfg
}

func newHarness(t *testing.T, cfg config.MMU) *harness {
	t.Helper()
	h := &harness{
		logic:    newFakeLogic(),
		motion:   &fakeMotion{pos: Position{X: 10, Y: 20, Z: 0.4}, homed: true},
		hotend:   &fakeHotend{target: 215, temp: 215, heatRate: 20},
		extruder: &fakeExtruder{},
		sensor:   &fakeSensor{},
		input:    &fakeInput{},
		power:    &fakePower{},
		reset:    &fakeResetLine{},
		stopper:  &fakeStopper{},
		clock:    &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		rec:      &recorder{},
		logBuf:   &bytes.Buffer{},
	}
	logger := log.New("MMU2")
	logger.SetWriter(h.logBuf)
	logger.SetColorize(false)
	logger.SetLevel(log.DEBUG)

	printer := Printer{
		Motion:    h.motion,
		Hotend:    h.hotend,
		Extruder:  h.extruder,
		Sensor:    h.sensor,
		Input:     h.input,
		Power:     h.power,
		ResetLine: h.reset,
		Stopper:   h.stopper,
		Idle: func() {
			h.idles++
			if h.onIdle != nil {
				h.onIdle()
			}
		},
	}
	m, err := New(cfg, h.logic, printer,
		WithLogger(logger),
		WithObserver(h.rec),
		WithClock(h.clock.now, h.clock.sleep),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.mmu = m
	return h
}

// newActive returns a harness whose MMU completed the handshake.
func newActive(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, testConfig())
	h.mmu.Step()
	if h.mmu.State() != StateActive {
		t.Fatalf("state = %v, want active", h.mmu.State())
	}
	return h
}
