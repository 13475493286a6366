// run subcommand: drive the MMU from the control loop
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mmu2-host/pkg/config"
	"mmu2-host/pkg/log"
	"mmu2-host/pkg/metrics"
	"mmu2-host/pkg/mmu"
	"mmu2-host/pkg/notify"
	"mmu2-host/pkg/protocol"
	"mmu2-host/pkg/reactor"
	"mmu2-host/pkg/serial"
	"mmu2-host/pkg/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the MMU against the simulated unit",
	Long: `Starts the MMU orchestrator on a simulated unit and printer, serves
metrics and the operator websocket, and executes an optional command script.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("http", ":9100", "HTTP listen address for /metrics and /websocket, empty to disable")
	f.String("http-user", "", "Basic auth user for the HTTP server")
	f.String("http-password", "", "Basic auth password for the HTTP server")
	f.Duration("cycle", 100*time.Millisecond, "Control cycle period while idle")
	f.String("script", "", `Commands to run once connected, e.g. "T0 T1 U"`)
	f.Bool("exit", false, "Exit after the script completes")
	f.Bool("reset-line", false, "Open the [mmu2] serial device and use its reset line")
	f.Int("auto-answer", -1, "Answer error screens with this button (0 or 1), -1 to wait for the operator")
	f.Int("auto-patience", 20, "Control cycles before answering automatically")
	f.StringSlice("fault", nil, "Inject a simulated fault, command:stage:code[:times]")
	f.Int("sim-handshake", 5, "Simulated handshake length in steps")
	f.Int("sim-stage-steps", 10, "Simulated steps per progress stage")
	f.String("sim-firmware", "3.0.2", "Simulated firmware version")
	f.Float64("sim-preheat", 215, "Simulated nozzle temperature at start")

	for _, name := range []string{
		"http", "http-user", "http-password", "cycle", "script", "exit", "reset-line",
		"auto-answer", "auto-patience", "fault",
		"sim-handshake", "sim-stage-steps", "sim-firmware", "sim-preheat",
	} {
		v.BindPFlag(name, f.Lookup(name))
	}
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := log.GetLogger("host")

	mcfg, err := loadMMUConfig(opts.PrinterConfig)
	if err != nil {
		return err
	}
	script, err := parseScript(opts.Script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bench, err := newSimBench(mcfg)
	if err != nil {
		return err
	}
	host := bench.printer.Host()

	if opts.ResetLine {
		port, err := serial.Open(serial.Config{Device: mcfg.Serial, BaudRate: mcfg.Baud})
		if err != nil {
			return err
		}
		defer port.Close()
		line, err := serial.ParseLine(mcfg.ResetPin)
		if err != nil {
			return err
		}
		if line != serial.LineNone {
			host.ResetLine = serial.NewResetLine(port, line, mcfg.ResetPulse)
			logger.Info("Reset line %s on %s", line, port.Device())
		}
	}

	hub := notify.New()
	defer hub.Close()
	mm := metrics.New()
	op := &sim.Operator{}
	if opts.AutoAnswer >= 0 {
		op.SetAuto(opts.AutoAnswer, opts.AutoPatience)
	}
	host.Input = inputs{hub, op}

	var active atomic.Bool
	var m *mmu.MMU
	host.Idle = func() {
		if ctx.Err() != nil && m != nil && m.State() != mmu.StateStopped {
			logger.Info("Interrupted, stopping MMU")
			m.Stop()
		}
	}

	m, err = mmu.New(mcfg, bench.acc, host,
		mmu.WithObserver(mm),
		mmu.WithObserver(hub),
		mmu.WithObserver(mmu.ObserverFuncs{
			State: func(s mmu.State) { active.Store(s == mmu.StateActive) },
		}),
	)
	if err != nil {
		return err
	}

	if opts.HTTPAddr != "" {
		srv := metrics.NewServer(mm, metrics.ServerConfig{
			Address:  opts.HTTPAddr,
			Username: opts.HTTPUser,
			Password: opts.HTTPPassword,
		})
		srv.Handle("/websocket", "MMU notifications (JSON-RPC)", hub)
		srv.SetReadyFunc(active.Load)
		errCh, err := srv.Start()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("HTTP shutdown")
			}
		}()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("HTTP server stopped")
			}
		}()
		logger.Info("Serving metrics and websocket on %s", opts.HTTPAddr)
	}

	r := reactor.New()
	cycle := opts.Cycle.Seconds()
	r.RegisterTimer(func(eventtime float64) float64 {
		m.Step()
		m.Recovery().Tick()
		return eventtime + cycle
	}, reactor.NOW)

	runSteps := func(steps []step) error {
		for _, st := range steps {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Info("Script: %s", st)
			if err := st.run(m); err != nil {
				logger.WithError(err).Error("Script step %s failed", st)
				return fmt.Errorf("%s: %w", st, err)
			}
		}
		return nil
	}

	var scriptErr error
	r.RegisterCallback(func(eventtime float64) any {
		scriptErr = runSteps(script)
		if opts.Exit {
			r.End()
		}
		return nil
	}, reactor.NOW)

	hub.SetScriptHandler(func(text string) error {
		steps, err := parseScript(text)
		if err != nil {
			return err
		}
		_, err = r.Async(func(eventtime float64) any { return runSteps(steps) })
		return err
	})

	err = r.Run(ctx)
	m.Stop()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil && opts.Exit {
		err = scriptErr
	}
	return err
}

// simBench is the simulated unit and printer the orchestrator drives.
type simBench struct {
	acc     *sim.Accessory
	printer *sim.Printer
}

func newSimBench(mcfg config.MMU) (*simBench, error) {
	acfg := sim.DefaultAccessoryConfig()
	acfg.Slots = uint8(mcfg.Slots)
	acfg.HandshakeSteps = opts.SimHandshake
	acfg.StageSteps = opts.SimStageSteps
	var ver protocol.Version
	if _, err := fmt.Sscanf(opts.SimFirmware, "%d.%d.%d", &ver.Major, &ver.Minor, &ver.Build); err != nil {
		return nil, fmt.Errorf("invalid sim-firmware %q: %w", opts.SimFirmware, err)
	}
	acfg.Version = ver

	acc := sim.NewAccessory(acfg)
	for _, spec := range opts.Faults {
		f, err := parseFault(spec)
		if err != nil {
			return nil, err
		}
		acc.Inject(f)
	}

	// The heater model runs ahead of wall time so the nozzle starts hot.
	var skew time.Duration
	hot := sim.NewHotend(sim.DefaultHotendConfig(), func() time.Time { return time.Now().Add(skew) })
	if opts.SimPreheat > 0 {
		hot.SetTargetTemp(opts.SimPreheat)
		skew = 10 * time.Minute
	}

	pr := sim.NewPrinter(acc, hot, mmu.Position{X: 100, Y: 100, Z: 10})
	return &simBench{acc: acc, printer: pr}, nil
}
