// Package reactor runs timers and queued callbacks on one goroutine, the
// host's control loop. Code that touches the MMU runs inside the reactor;
// other goroutines hand work to it with Async.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Wake times in seconds of Monotonic time.
const (
	NOW   = 0.0
	NEVER = 9999999999999999.0
)

// maxSleep bounds a single wait so End and ctx are noticed promptly.
const maxSleep = time.Second

var (
	ErrClosed  = errors.New("reactor: reactor closed")
	ErrRunning = errors.New("reactor: already running")
	ErrBusy    = errors.New("reactor: async queue full")
)

// TimerCallback is called when a timer fires.
// The callback receives the event time and returns the next wake time.
// Return NEVER to stop the timer.
type TimerCallback func(eventtime float64) float64

// Timer is a registered timer. Timers are owned by the reactor goroutine.
type Timer struct {
	callback TimerCallback
	waketime float64
}

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() float64 {
	return t.waketime
}

// Completion carries the result of a callback.
type Completion struct {
	result any
	done   chan struct{}
	once   sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the result. Later calls are ignored.
func (c *Completion) Complete(result any) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Wait blocks until the completion is done or ctx ends.
func (c *Completion) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reactor dispatches timers and callbacks.
type Reactor struct {
	startTime time.Time
	timers    []*Timer

	async   chan func()
	end     chan struct{}
	endOnce sync.Once
	running atomic.Bool
}

// New creates a reactor. Timers may be registered before Run.
func New() *Reactor {
	return &Reactor{
		startTime: time.Now(),
		async:     make(chan func(), 64),
		end:       make(chan struct{}),
	}
}

// Monotonic returns the seconds elapsed since the reactor was created.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// RegisterTimer registers a timer. Call from the reactor goroutine or
// before Run.
func (r *Reactor) RegisterTimer(callback TimerCallback, waketime float64) *Timer {
	t := &Timer{callback: callback, waketime: waketime}
	r.timers = append(r.timers, t)
	return t
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	timer.waketime = NEVER
	for i, t := range r.timers {
		if t == timer {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			return
		}
	}
}

// UpdateTimer moves a timer's wake time.
func (r *Reactor) UpdateTimer(timer *Timer, waketime float64) {
	timer.waketime = waketime
}

// RegisterCallback runs callback once at waketime and completes the
// returned Completion with its result.
func (r *Reactor) RegisterCallback(callback func(eventtime float64) any, waketime float64) *Completion {
	c := newCompletion()
	var t *Timer
	t = r.RegisterTimer(func(eventtime float64) float64 {
		r.UnregisterTimer(t)
		c.Complete(callback(eventtime))
		return NEVER
	}, waketime)
	return c
}

// Async queues callback to run on the reactor goroutine as soon as it is
// free. Safe for concurrent use.
func (r *Reactor) Async(callback func(eventtime float64) any) (*Completion, error) {
	select {
	case <-r.end:
		return nil, ErrClosed
	default:
	}
	c := newCompletion()
	select {
	case r.async <- func() { c.Complete(callback(r.Monotonic())) }:
		return c, nil
	default:
		return nil, ErrBusy
	}
}

// Run dispatches on the calling goroutine until End is called, returning
// nil, or ctx ends, returning its error.
func (r *Reactor) Run(ctx context.Context) error {
	if r.running.Swap(true) {
		return ErrRunning
	}
	defer r.running.Store(false)

	for {
		select {
		case <-r.end:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next := r.checkTimers(r.Monotonic())

		delay := maxSleep
		if next < NEVER {
			if d := time.Duration((next - r.Monotonic()) * float64(time.Second)); d < delay {
				delay = max(d, 0)
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-r.end:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case fn := <-r.async:
			timer.Stop()
			fn()
		case <-timer.C:
		}
	}
}

// End stops Run. Safe for concurrent use and from callbacks.
func (r *Reactor) End() {
	r.endOnce.Do(func() { close(r.end) })
}

// checkTimers fires due timers and returns the earliest remaining wake
// time.
func (r *Reactor) checkTimers(eventtime float64) float64 {
	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)

	for _, t := range timers {
		if eventtime >= t.waketime {
			t.waketime = NEVER
			if w := t.callback(eventtime); w < t.waketime {
				t.waketime = w
			}
		}
	}

	next := NEVER
	for _, t := range r.timers {
		next = min(next, t.waketime)
	}
	return next
}
