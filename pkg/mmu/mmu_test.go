package mmu

import (
	"testing"
	"time"

	"mmu2-host/pkg/errors"
	"mmu2-host/pkg/mmuerr"
	"mmu2-host/pkg/protocol"
)

func TestNewInitialState(t *testing.T) {
	h := newHarness(t, testConfig())
	if h.mmu.State() != StateConnecting {
		t.Errorf("enabled: state = %v, want connecting", h.mmu.State())
	}
	if h.logic.starts != 1 || h.power.on != 1 {
		t.Errorf("starts=%d power on=%d", h.logic.starts, h.power.on)
	}
	if h.mmu.Slot() != NoSlot || h.mmu.PreviousSlot() != NoSlot || h.mmu.PendingSlot() != NoSlot {
		t.Error("slots not initialised to NoSlot")
	}

	cfg := testConfig()
	cfg.Enabled = false
	h = newHarness(t, cfg)
	if h.mmu.State() != StateStopped || h.logic.starts != 0 {
		t.Errorf("disabled: state = %v starts = %d", h.mmu.State(), h.logic.starts)
	}
}

func TestNewValidates(t *testing.T) {
	h := newHarness(t, testConfig())
	if _, err := New(testConfig(), nil, h.mmu.printer); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("nil logic: %v", err)
	}
	p := h.mmu.printer
	p.Hotend = nil
	if _, err := New(testConfig(), h.logic, p); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("nil hotend: %v", err)
	}
	cfg := testConfig()
	cfg.Slots = 0
	if _, err := New(cfg, h.logic, h.mmu.printer); !errors.IsConfig(err) {
		t.Errorf("bad config: %v", err)
	}
}

func TestHandshakeActivates(t *testing.T) {
	h := newHarness(t, testConfig())
	h.logic.handshake = 3
	if v := h.mmu.FirmwareVersion(); !v.IsZero() {
		t.Errorf("version while connecting = %v", v)
	}
	for i := 0; i < 2; i++ {
		h.mmu.Step()
		if h.mmu.State() != StateConnecting {
			t.Fatalf("step %d: state = %v", i, h.mmu.State())
		}
	}
	h.mmu.Step()
	if h.mmu.State() != StateActive {
		t.Fatalf("state = %v, want active", h.mmu.State())
	}
	if v := h.mmu.FirmwareVersion(); v.String() != "3.0.2" {
		t.Errorf("version = %v", v)
	}
	want := []State{StateConnecting, StateActive}
	if len(h.rec.states) != len(want) || h.rec.states[0] != want[0] || h.rec.states[1] != want[1] {
		t.Errorf("states = %v, want %v", h.rec.states, want)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	h := newActive(t)
	h.mmu.Start()
	if h.logic.starts != 1 {
		t.Errorf("Start while active restarted the logic")
	}
	h.mmu.Stop()
	h.mmu.Stop()
	if h.mmu.State() != StateStopped || h.logic.stops != 1 || h.power.off != 1 {
		t.Errorf("state=%v stops=%d off=%d", h.mmu.State(), h.logic.stops, h.power.off)
	}
	h.mmu.Start()
	if h.mmu.State() != StateConnecting || h.logic.starts != 2 {
		t.Errorf("restart: state=%v starts=%d", h.mmu.State(), h.logic.starts)
	}
}

// Active, a tool change completes normally.
func TestToolChangeSuccess(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.ToolChange(0); err != nil {
		t.Fatalf("ToolChange(0): %v", err)
	}

	h.logic.script = []stepResult{
		running(protocol.SelectingFilamentSlot),
		running(protocol.FeedingToFinda),
		running(protocol.FeedingToBondtech),
		finished,
	}
	if err := h.mmu.ToolChange(2); err != nil {
		t.Fatalf("ToolChange(2): %v", err)
	}
	if h.mmu.Slot() != 2 || h.mmu.PreviousSlot() != 0 || h.mmu.PendingSlot() != NoSlot {
		t.Errorf("slot=%d previous=%d pending=%d", h.mmu.Slot(), h.mmu.PreviousSlot(), h.mmu.PendingSlot())
	}
	if h.mmu.Saved() != SavedNone {
		t.Errorf("saved = %v", h.mmu.Saved())
	}
	if got := h.logic.requests; len(got) != 2 || got[1] != "T2" {
		t.Errorf("requests = %v", got)
	}
	if len(h.motion.moves) != 0 {
		t.Errorf("toolhead moved: %v", h.motion.moves)
	}
	last := h.rec.commands[len(h.rec.commands)-1]
	if last.Name != "tool_change" || last.Phase != CommandEnd || last.Err != nil || last.Slot != 2 {
		t.Errorf("last command report = %+v", last)
	}
}

// A FINDA error mid tool change parks the printer and leaves the change
// pending until the operator retries.
func TestToolChangeErrorParksUntilRetry(t *testing.T) {
	h := newActive(t)
	start := h.motion.pos
	h.logic.fallback = failed(protocol.FindaDidntSwitchOn)
	h.logic.onButton = func(b protocol.Button) {
		if b == protocol.ButtonMiddle {
			h.logic.fallback = finished
		}
	}

	var savedDuringError SavedState
	var pendingDuringError uint8
	h.onIdle = func() {
		if h.mmu.ErrorCode() == protocol.FindaDidntSwitchOn && savedDuringError == SavedNone {
			savedDuringError = h.mmu.Saved()
			pendingDuringError = h.mmu.PendingSlot()
			h.input.queue = append(h.input.queue, 0) // Retry
		}
	}

	if err := h.mmu.ToolChange(3); err != nil {
		t.Fatalf("ToolChange(3): %v", err)
	}

	if savedDuringError != SavedParkExtruder|SavedCooldownPending {
		t.Errorf("saved during error = %v", savedDuringError)
	}
	if pendingDuringError != 3 {
		t.Errorf("pending during error = %d", pendingDuringError)
	}
	if len(h.rec.errors) != 1 {
		t.Fatalf("error reports = %+v", h.rec.errors)
	}
	if h.rec.errors[0].Category != mmuerr.FindaDidntTrigger || h.rec.errors[0].Source != SourceMMU {
		t.Errorf("error report = %+v", h.rec.errors[0])
	}
	if len(h.logic.buttons) != 1 || h.logic.buttons[0] != protocol.ButtonMiddle {
		t.Errorf("buttons = %v", h.logic.buttons)
	}

	if h.mmu.Slot() != 3 || h.mmu.PendingSlot() != NoSlot || h.mmu.Saved() != SavedNone {
		t.Errorf("after retry slot=%d pending=%d saved=%v", h.mmu.Slot(), h.mmu.PendingSlot(), h.mmu.Saved())
	}
	if h.motion.pos != start {
		t.Errorf("toolhead at %v, want %v", h.motion.pos, start)
	}
	// lift, park XY, unpark XY, lower Z
	if len(h.motion.moves) != 4 {
		t.Fatalf("moves = %v", h.motion.moves)
	}
	if park := h.motion.moves[1].pos; park.X != h.mmu.cfg.ParkX || park.Z != start.Z+h.mmu.cfg.ParkZLift {
		t.Errorf("park position = %v", park)
	}
	if h.hotend.target != 215 || len(h.hotend.targets) != 0 {
		t.Errorf("pending cooldown touched the heater: target=%v changes=%v", h.hotend.target, h.hotend.targets)
	}
}

// A click made while nothing was on screen must not answer the next error.
func TestStaleSelectionCannotAnswerError(t *testing.T) {
	h := newActive(t)
	h.input.queue = []int{1} // Continue
	if err := h.mmu.ToolChange(0); err != nil {
		t.Fatalf("ToolChange(0): %v", err)
	}

	h.logic.fallback = failed(protocol.FindaDidntSwitchOn)
	h.logic.onButton = func(protocol.Button) { h.logic.fallback = finished }
	shown := 0
	h.onIdle = func() {
		if h.mmu.ErrorCode() != protocol.FindaDidntSwitchOn {
			return
		}
		shown++
		if shown == 3 {
			h.input.queue = append(h.input.queue, 0) // Retry
		}
	}
	if err := h.mmu.ToolChange(3); err != nil {
		t.Fatalf("ToolChange(3): %v", err)
	}

	if h.input.discarded != 1 {
		t.Errorf("discarded = %d, want the early click dropped", h.input.discarded)
	}
	if shown < 3 {
		t.Errorf("error answered after %d idle passes", shown)
	}
	if len(h.logic.buttons) != 1 || h.logic.buttons[0] != protocol.ButtonMiddle {
		t.Errorf("buttons = %v, want the operator's Retry only", h.logic.buttons)
	}
	if h.mmu.Slot() != 3 {
		t.Errorf("slot = %d", h.mmu.Slot())
	}
}

func TestPulleyOverheatReport(t *testing.T) {
	h := newActive(t)
	code := protocol.TMCPulleyBit | protocol.TMCOverTemperatureError
	h.logic.fallback = failed(code)
	h.mmu.Step()
	if len(h.rec.errors) != 1 {
		t.Fatalf("errors = %v", h.rec.errors)
	}
	if got := h.rec.errors[0].Category; got != mmuerr.PulleyTMCOverheat {
		t.Errorf("category = %v, want PulleyTMCOverheat", got)
	}
	if got := mmuerr.Classify(protocol.TMCSelectorBit | protocol.TMCOverTemperatureError); got == mmuerr.PulleyTMCOverheat {
		t.Error("selector overheat classified as pulley")
	}
}

func TestStoppedRejectsWithoutSideEffects(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	h := newHarness(t, cfg)

	calls := map[string]func() error{
		"tool_change":       func() error { return h.mmu.ToolChange(1) },
		"load_filament":     func() error { return h.mmu.LoadFilament(1) },
		"load_to_nozzle":    func() error { return h.mmu.LoadToNozzle(1) },
		"load_to_feeder":    func() error { return h.mmu.LoadToFeeder(1) },
		"unload":            func() error { return h.mmu.Unload() },
		"eject":             func() error { return h.mmu.Eject(1, true) },
		"cut":               func() error { return h.mmu.Cut(1) },
		"home":              func() error { return h.mmu.Home(0) },
		"button":            func() error { return h.mmu.Button(1) },
		"reset":             func() error { return h.mmu.Reset(ResetSoftware) },
		"set_filament_type": func() error { return h.mmu.SetFilamentType(1, 2) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, errors.ErrStopped) {
			t.Errorf("%s: err = %v, want MMU_STOPPED", name, err)
		}
	}
	if h.logic.steps != 0 || len(h.logic.requests) != 0 || len(h.logic.buttons) != 0 || h.logic.resets != 0 {
		t.Errorf("logic touched: steps=%d requests=%v buttons=%v resets=%d",
			h.logic.steps, h.logic.requests, h.logic.buttons, h.logic.resets)
	}
	if len(h.motion.moves) != 0 || len(h.extruder.moves) != 0 || len(h.hotend.targets) != 0 {
		t.Error("printer touched while stopped")
	}
	if len(h.rec.commands) != 0 || len(h.rec.errors) != 0 || len(h.clock.sleeps) != 0 {
		t.Errorf("reports or waits while stopped: %v %v %v", h.rec.commands, h.rec.errors, h.clock.sleeps)
	}
}

func TestConnectingTimesOut(t *testing.T) {
	h := newHarness(t, testConfig())
	h.logic.handshake = 1 << 30

	err := h.mmu.ToolChange(1)
	if !errors.Is(err, errors.ErrNotReady) {
		t.Fatalf("err = %v, want MMU_NOT_READY", err)
	}
	if len(h.logic.requests) != 0 {
		t.Errorf("requests = %v", h.logic.requests)
	}
	if len(h.rec.errors) != 1 {
		t.Fatalf("errors = %+v", h.rec.errors)
	}
	if h.rec.errors[0].Code != protocol.MMUNotResponding || h.rec.errors[0].Source != SourcePrinter {
		t.Errorf("error report = %+v", h.rec.errors[0])
	}
	if h.rec.errors[0].Category != mmuerr.MMUNotResponding {
		t.Errorf("category = %v", h.rec.errors[0].Category)
	}
	if waited := h.clock.t.Sub(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); waited != time.Second {
		t.Errorf("waited %v, want 1s", waited)
	}
	if h.mmu.State() != StateConnecting {
		t.Errorf("state = %v", h.mmu.State())
	}
}

func TestConnectingBecomesReady(t *testing.T) {
	h := newHarness(t, testConfig())
	h.logic.handshake = 4
	if err := h.mmu.LoadFilament(1); err != nil {
		t.Fatalf("LoadFilament: %v", err)
	}
	if h.mmu.State() != StateActive || len(h.logic.requests) != 1 || h.logic.requests[0] != "L1" {
		t.Errorf("state=%v requests=%v", h.mmu.State(), h.logic.requests)
	}
	if h.mmu.Slot() != NoSlot {
		t.Errorf("LoadFilament changed the active slot to %d", h.mmu.Slot())
	}
}

func TestInvalidSlot(t *testing.T) {
	h := newActive(t)
	for name, call := range map[string]func() error{
		"tool_change": func() error { return h.mmu.ToolChange(5) },
		"load":        func() error { return h.mmu.LoadFilament(200) },
		"eject":       func() error { return h.mmu.Eject(5, false) },
		"cut":         func() error { return h.mmu.Cut(NoSlot) },
		"type":        func() error { return h.mmu.SetFilamentType(9, 1) },
	} {
		if err := call(); !errors.Is(err, errors.ErrInvalidSlot) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
	if len(h.logic.requests) != 0 {
		t.Errorf("requests = %v", h.logic.requests)
	}
	if err := h.mmu.Button(3); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("Button(3): %v", err)
	}
	if err := h.mmu.Button(-1); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("Button(-1): %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	h := newActive(t)
	var nested bool
	var cmdErr, buttonErr error
	calls := 0
	h.mmu.reporter.observers = append(h.mmu.reporter.observers, ObserverFuncs{
		Progress: func(p ProgressReport) {
			if p.Progress != protocol.FeedingToFinda {
				return
			}
			calls++
			nested = h.mmu.Step()
			cmdErr = h.mmu.ToolChange(1)
			buttonErr = h.mmu.Button(1)
		},
	})
	h.logic.script = []stepResult{running(protocol.FeedingToFinda), finished}
	stepsBefore := h.logic.steps

	if err := h.mmu.ToolChange(2); err != nil {
		t.Fatalf("ToolChange(2): %v", err)
	}
	if calls != 1 {
		t.Fatalf("observer calls = %d", calls)
	}
	if nested {
		t.Error("nested Step ran")
	}
	if !errors.Is(cmdErr, errors.ErrBusy) {
		t.Errorf("nested ToolChange err = %v", cmdErr)
	}
	if buttonErr != nil {
		t.Errorf("nested Button err = %v", buttonErr)
	}
	if got := h.logic.steps - stepsBefore; got != 2 {
		t.Errorf("logic steps = %d, want 2", got)
	}
	if len(h.logic.requests) != 1 {
		t.Errorf("requests = %v", h.logic.requests)
	}
}

func TestColdExtruderRejected(t *testing.T) {
	h := newActive(t)
	h.hotend.temp, h.hotend.target = 25, 0

	if err := h.mmu.Unload(); !errors.Is(err, errors.ErrColdExtrude) {
		t.Errorf("Unload: %v", err)
	}
	if err := h.mmu.LoadToNozzle(1); !errors.Is(err, errors.ErrColdExtrude) {
		t.Errorf("LoadToNozzle: %v", err)
	}
	if len(h.logic.requests) != 0 || len(h.extruder.moves) != 0 {
		t.Errorf("requests=%v extruder=%v", h.logic.requests, h.extruder.moves)
	}

	if err := h.mmu.LoadToFeeder(1); err != nil {
		t.Fatalf("LoadToFeeder cold: %v", err)
	}
	if h.mmu.Slot() != 1 || h.logic.requests[0] != "T1" {
		t.Errorf("slot=%d requests=%v", h.mmu.Slot(), h.logic.requests)
	}
}

func TestUnloadRamsAndClearsSlot(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.ToolChange(1); err != nil {
		t.Fatal(err)
	}
	h.sensor.triggered = true
	h.logic.script = []stepResult{running(protocol.UnloadingToFinda), running(protocol.UnloadingToPulley), finished}

	if err := h.mmu.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if h.mmu.Slot() != NoSlot || h.mmu.PendingSlot() != NoSlot {
		t.Errorf("slot=%d pending=%d", h.mmu.Slot(), h.mmu.PendingSlot())
	}
	if h.mmu.PreviousSlot() != NoSlot {
		t.Errorf("previous = %d", h.mmu.PreviousSlot())
	}
	want := len(rammingSequence) + 1
	if len(h.extruder.moves) != want {
		t.Fatalf("extruder moves = %d, want %d", len(h.extruder.moves), want)
	}
	if assist := h.extruder.moves[want-1]; assist.distance != -h.mmu.cfg.UnloadAssistLength {
		t.Errorf("unload assist move = %+v", assist)
	}
	if h.logic.requests[1] != "U0" {
		t.Errorf("requests = %v", h.logic.requests)
	}
}

func TestLoadToNozzle(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.LoadToNozzle(0); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(h.extruder.moves) != len(loadToNozzleSequence) {
		t.Errorf("empty extruder was rammed: %v", h.extruder.moves)
	}

	h.extruder.moves = nil
	if err := h.mmu.LoadToNozzle(4); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(h.extruder.moves) != len(rammingSequence)+len(loadToNozzleSequence) {
		t.Errorf("extruder moves = %d", len(h.extruder.moves))
	}
	if h.mmu.Slot() != 4 || h.mmu.PreviousSlot() != 0 {
		t.Errorf("slot=%d previous=%d", h.mmu.Slot(), h.mmu.PreviousSlot())
	}
}

func TestFSensorExtraFeedOnce(t *testing.T) {
	h := newActive(t)
	h.logic.script = []stepResult{
		running(protocol.FeedingToBondtech),
		running(protocol.FeedingToBondtech),
		running(protocol.FeedingToBondtech),
		running(protocol.FeedingToBondtech),
		finished,
	}
	steps := 0
	h.logic.onStep = func() {
		steps++
		if steps == 3 {
			h.sensor.triggered = true
		}
	}
	syncs := h.extruder.syncs
	if err := h.mmu.ToolChange(1); err != nil {
		t.Fatal(err)
	}
	if len(h.extruder.moves) != 1 {
		t.Fatalf("extruder moves = %v", h.extruder.moves)
	}
	mv := h.extruder.moves[0]
	if mv.distance != h.mmu.cfg.FSensorExtraFeed || mv.feedrate != h.mmu.cfg.LoadFeedrate {
		t.Errorf("extra feed = %+v", mv)
	}
	if h.extruder.syncs != syncs+1 {
		t.Errorf("syncs = %d", h.extruder.syncs-syncs)
	}
	if h.mmu.loadStarted || h.mmu.sensorFed {
		t.Error("load flags not cleared on OK")
	}
}

func TestEjectRecover(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.ToolChange(2); err != nil {
		t.Fatal(err)
	}
	h.input.queue = []int{0} // left over from before the eject
	polls := 0
	h.onIdle = func() {
		polls++
		if polls == 3 {
			h.input.queue = append(h.input.queue, 1)
		}
	}
	if err := h.mmu.Eject(2, true); err != nil {
		t.Fatalf("Eject: %v", err)
	}
	if h.mmu.Slot() != NoSlot {
		t.Errorf("slot = %d", h.mmu.Slot())
	}
	if h.extruder.moves[0].distance != -h.mmu.cfg.EjectRetract {
		t.Errorf("pre-retract = %+v", h.extruder.moves[0])
	}
	if len(h.input.queue) != 0 || polls < 3 || h.input.discarded != 1 {
		t.Errorf("confirmation not awaited: polls=%d queue=%v discarded=%d", polls, h.input.queue, h.input.discarded)
	}
	if h.logic.requests[1] != "E2" {
		t.Errorf("requests = %v", h.logic.requests)
	}
}

func TestCutAndHome(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.Cut(3); err != nil {
		t.Fatal(err)
	}
	if err := h.mmu.Home(1); err != nil {
		t.Fatal(err)
	}
	if got := h.logic.requests; len(got) != 2 || got[0] != "K3" || got[1] != "H1" {
		t.Errorf("requests = %v", got)
	}
}

func TestAutoRetry(t *testing.T) {
	cfg := testConfig()
	cfg.AutoRetries = 1
	h := newHarness(t, cfg)
	h.mmu.Step()

	h.logic.script = []stepResult{failed(protocol.FindaDidntSwitchOn)}
	if err := h.mmu.ToolChange(1); err != nil {
		t.Fatal(err)
	}
	if len(h.logic.buttons) != 1 || h.logic.buttons[0] != protocol.ButtonMiddle {
		t.Errorf("buttons = %v", h.logic.buttons)
	}
	if len(h.motion.moves) != 0 {
		t.Errorf("parked during automatic retry: %v", h.motion.moves)
	}

	// The budget is per command. A persisting error uses it up, then parks
	// and waits for the operator.
	h.logic.fallback = failed(protocol.FindaDidntSwitchOn)
	h.logic.buttons = nil
	h.logic.onButton = func(protocol.Button) {
		if len(h.logic.buttons) == 2 {
			h.logic.fallback = finished
		}
	}
	h.onIdle = func() {
		if h.mmu.Saved().Has(SavedParkExtruder) && len(h.input.queue) == 0 && len(h.logic.buttons) == 1 {
			h.input.queue = append(h.input.queue, 1) // Continue
		}
	}
	if err := h.mmu.ToolChange(2); err != nil {
		t.Fatal(err)
	}
	want := []protocol.Button{protocol.ButtonMiddle, protocol.ButtonRight}
	if len(h.logic.buttons) != 2 || h.logic.buttons[0] != want[0] || h.logic.buttons[1] != want[1] {
		t.Errorf("buttons = %v, want %v", h.logic.buttons, want)
	}
	if len(h.motion.moves) == 0 || h.mmu.Saved() != SavedNone {
		t.Errorf("moves=%v saved=%v", h.motion.moves, h.mmu.Saved())
	}
}

func TestCooldownTimerAndReheat(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownTimeout = time.Second
	h := newHarness(t, cfg)
	h.mmu.Step()

	h.logic.fallback = failed(protocol.FSensorDidntSwitchOn)
	h.logic.onButton = func(protocol.Button) { h.logic.fallback = finished }
	var cooled bool
	h.onIdle = func() {
		if h.mmu.Saved().Has(SavedCooldown) && !cooled {
			cooled = true
			h.hotend.temp = 40
			h.input.queue = append(h.input.queue, 0) // Retry
		}
	}

	if err := h.mmu.ToolChange(1); err != nil {
		t.Fatal(err)
	}
	if !cooled {
		t.Fatal("cooldown never became active")
	}
	if len(h.hotend.targets) != 2 || h.hotend.targets[0] != 0 || h.hotend.targets[1] != 215 {
		t.Errorf("heater targets = %v", h.hotend.targets)
	}
	if h.hotend.temp < 210 {
		t.Errorf("did not wait for reheat, temp = %v", h.hotend.temp)
	}
	if h.mmu.Saved() != SavedNone {
		t.Errorf("saved = %v", h.mmu.Saved())
	}
}

func TestDisableFromErrorScreen(t *testing.T) {
	h := newActive(t)
	h.logic.fallback = failed(protocol.VersionMismatch)
	h.onIdle = func() {
		if h.mmu.ErrorCode() == protocol.VersionMismatch && len(h.input.queue) == 0 {
			h.input.queue = append(h.input.queue, 0) // Disable MMU
		}
	}
	err := h.mmu.ToolChange(1)
	if !errors.Is(err, errors.ErrStopped) {
		t.Fatalf("err = %v, want MMU_STOPPED", err)
	}
	if h.mmu.State() != StateStopped || h.power.off != 1 {
		t.Errorf("state=%v power off=%d", h.mmu.State(), h.power.off)
	}
	if h.mmu.Saved() != SavedNone || h.mmu.PendingSlot() != NoSlot || h.mmu.Slot() != NoSlot {
		t.Errorf("saved=%v pending=%d slot=%d", h.mmu.Saved(), h.mmu.PendingSlot(), h.mmu.Slot())
	}
	if h.rec.errors[0].Source != SourcePrinter {
		t.Errorf("source = %v", h.rec.errors[0].Source)
	}
}

func TestStopPrintFromErrorScreen(t *testing.T) {
	h := newActive(t)
	h.logic.fallback = failed(protocol.InvalidTool)
	h.mmu.Step()
	h.input.queue = []int{5, 0} // out of range, then Stop print
	h.mmu.Step()
	if h.stopper.stops != 0 {
		t.Fatal("illegal selection acted on")
	}
	h.mmu.Step()
	if h.stopper.stops != 1 {
		t.Errorf("stops = %d", h.stopper.stops)
	}
}

func TestResetLevels(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.Reset(ResetSoftware); err != nil || h.logic.resets != 1 {
		t.Errorf("software: err=%v resets=%d", err, h.logic.resets)
	}

	if err := h.mmu.Reset(ResetPin); err != nil {
		t.Fatal(err)
	}
	if h.reset.pulses != 1 || h.logic.starts != 2 || h.mmu.State() != StateConnecting {
		t.Errorf("pin: pulses=%d starts=%d state=%v", h.reset.pulses, h.logic.starts, h.mmu.State())
	}

	h.mmu.printer.ResetLine = nil
	if err := h.mmu.Reset(ResetPin); err != nil || h.logic.resets != 2 {
		t.Errorf("pin fallback: err=%v resets=%d", err, h.logic.resets)
	}

	if err := h.mmu.Reset(ResetPowerCycle); err != nil {
		t.Fatal(err)
	}
	if h.power.off != 1 || h.power.on != 2 || h.mmu.State() != StateConnecting {
		t.Errorf("power cycle: off=%d on=%d state=%v", h.power.off, h.power.on, h.mmu.State())
	}
	if last := h.clock.sleeps[len(h.clock.sleeps)-1]; last != h.mmu.cfg.PowerCycleSettle {
		t.Errorf("settle sleep = %v", last)
	}

	if err := h.mmu.Reset(ResetForm(9)); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("bad level: %v", err)
	}
}

func TestResetLineFailure(t *testing.T) {
	h := newActive(t)
	h.reset.err = errors.RuntimeError("ioctl failed")
	if err := h.mmu.Reset(ResetPin); !errors.Is(err, errors.ErrHardware) {
		t.Errorf("err = %v", err)
	}
	if h.mmu.State() != StateActive {
		t.Errorf("state = %v", h.mmu.State())
	}
}

func TestFilamentTypes(t *testing.T) {
	h := newActive(t)
	if err := h.mmu.SetFilamentType(3, 7); err != nil {
		t.Fatal(err)
	}
	if typ, err := h.mmu.FilamentType(3); err != nil || typ != 7 {
		t.Errorf("FilamentType(3) = %d, %v", typ, err)
	}
	if _, err := h.mmu.FilamentType(5); !errors.Is(err, errors.ErrInvalidSlot) {
		t.Errorf("FilamentType(5): %v", err)
	}
}

func TestFindaQuery(t *testing.T) {
	h := newActive(t)
	h.logic.finda = true
	if !h.mmu.FindaDetectsFilament() {
		t.Error("FINDA not reported")
	}
}

func TestResetInterruptsCommand(t *testing.T) {
	h := newActive(t)
	h.logic.fallback = failed(protocol.QueueFull)
	h.onIdle = func() {
		if h.mmu.ErrorCode() == protocol.QueueFull && len(h.input.queue) == 0 && h.reset.pulses == 0 {
			h.input.queue = append(h.input.queue, 0) // Reset MMU
			h.logic.handshake = 3
		}
	}
	err := h.mmu.ToolChange(1)
	if !errors.Is(err, errors.ErrOperation) {
		t.Fatalf("err = %v, want OPERATION_FAILED", err)
	}
	if h.reset.pulses != 1 || h.mmu.State() != StateConnecting {
		t.Errorf("pulses=%d state=%v", h.reset.pulses, h.mmu.State())
	}
	if h.mmu.Slot() != NoSlot || h.mmu.Saved() != SavedNone {
		t.Errorf("slot=%d saved=%v", h.mmu.Slot(), h.mmu.Saved())
	}

	// The next command waits for the handshake again.
	h.onIdle = nil
	h.logic.fallback = finished
	if err := h.mmu.ToolChange(1); err != nil {
		t.Fatalf("ToolChange after reset: %v", err)
	}
}
