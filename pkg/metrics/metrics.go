// MMU metrics
//
// Counts commands, errors and progress milestones reported by the MMU
// orchestrator and exposes them in Prometheus format.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mmu2-host/pkg/errors"
	"mmu2-host/pkg/mmu"
)

const namespace = "mmu2"

// MMUMetrics collects MMU events. It implements mmu.Observer and may be
// scraped from other goroutines.
type MMUMetrics struct {
	registry *prometheus.Registry

	State          *prometheus.GaugeVec
	Commands       *prometheus.CounterVec
	CommandSeconds *prometheus.HistogramVec
	Errors         *prometheus.CounterVec
	Progress       *prometheus.CounterVec
	ActiveSlot     prometheus.Gauge
	ToolChanges    prometheus.Counter

	now     func() time.Time
	mu      sync.Mutex
	started map[string]time.Time
}

// New creates and registers the MMU metrics together with the Go runtime
// and process collectors.
func New() *MMUMetrics {
	m := &MMUMetrics{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
		started:  make(map[string]time.Time),
	}

	m.State = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "MMU availability state (1 for the current state)",
	}, []string{"state"})
	m.Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Host commands completed, by command and result (ok or error code)",
	}, []string{"command", "result"})
	m.CommandSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Time from command start to completion",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900},
	}, []string{"command"})
	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors shown to the operator, by error code and source",
	}, []string{"code", "title", "source"})
	m.Progress = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "progress_total",
		Help:      "Progress milestones entered",
	}, []string{"progress"})
	m.ActiveSlot = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_slot",
		Help:      "Slot loaded by the last successful tool change, -1 when none",
	})
	m.ToolChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_changes_total",
		Help:      "Successful tool changes",
	})
	m.ActiveSlot.Set(-1)

	m.registry.MustRegister(
		m.State, m.Commands, m.CommandSeconds, m.Errors, m.Progress,
		m.ActiveSlot, m.ToolChanges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every metric.
func (m *MMUMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MMUMetrics) OnState(s mmu.State) {
	for _, st := range []mmu.State{mmu.StateActive, mmu.StateConnecting, mmu.StateStopped} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.WithLabelValues(st.String()).Set(v)
	}
}

func (m *MMUMetrics) OnError(r mmu.ErrorReport) {
	m.Errors.WithLabelValues(r.Category.Code(), r.Category.Title(), r.Source.String()).Inc()
}

func (m *MMUMetrics) OnProgress(r mmu.ProgressReport) {
	m.Progress.WithLabelValues(r.Progress.String()).Inc()
}

func (m *MMUMetrics) OnCommand(r mmu.CommandReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Phase == mmu.CommandBegin {
		m.started[r.Name] = m.now()
		return
	}

	result := "ok"
	if r.Err != nil {
		result = string(errors.CodeOf(r.Err))
		if result == "" {
			result = "error"
		}
	}
	m.Commands.WithLabelValues(r.Name, result).Inc()
	if start, ok := m.started[r.Name]; ok {
		m.CommandSeconds.WithLabelValues(r.Name).Observe(m.now().Sub(start).Seconds())
		delete(m.started, r.Name)
	}

	if r.Err != nil {
		return
	}
	switch r.Name {
	case "tool_change", "load_to_nozzle", "load_to_feeder":
		m.ToolChanges.Inc()
		m.ActiveSlot.Set(float64(r.Slot))
	case "unload", "eject":
		m.ActiveSlot.Set(-1)
	}
}
