package reactor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func runFor(t *testing.T, r *Reactor, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Run(ctx)
}

func TestMonotonic(t *testing.T) {
	r := New()

	t1 := r.Monotonic()
	time.Sleep(10 * time.Millisecond)
	t2 := r.Monotonic()

	if t2 <= t1 {
		t.Errorf("Monotonic time not increasing: %f <= %f", t2, t1)
	}
	if t2-t1 < 0.009 {
		t.Errorf("Unexpected elapsed time: %f (expected ~0.01)", t2-t1)
	}
}

func TestTimer(t *testing.T) {
	r := New()

	called := 0
	r.RegisterTimer(func(eventtime float64) float64 {
		called++
		return NEVER
	}, NOW)

	if err := runFor(t, r, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run returned %v", err)
	}
	if called != 1 {
		t.Errorf("Timer callback called %d times, expected 1", called)
	}
}

func TestTimerRepeat(t *testing.T) {
	r := New()

	called := 0
	r.RegisterTimer(func(eventtime float64) float64 {
		called++
		if called < 3 {
			return eventtime + 0.01
		}
		r.End()
		return NEVER
	}, NOW)

	if err := runFor(t, r, 5*time.Second); err != nil {
		t.Errorf("Run returned %v", err)
	}
	if called != 3 {
		t.Errorf("Timer callback called %d times, expected 3", called)
	}
}

func TestUnregisterTimer(t *testing.T) {
	r := New()

	called := 0
	timer := r.RegisterTimer(func(eventtime float64) float64 {
		called++
		return NEVER
	}, r.Monotonic()+0.02)
	r.UnregisterTimer(timer)

	runFor(t, r, 60*time.Millisecond)
	if called != 0 {
		t.Errorf("Timer callback called %d times after unregister, expected 0", called)
	}
	if timer.Waketime() != NEVER {
		t.Errorf("waketime = %f", timer.Waketime())
	}
}

func TestUpdateTimer(t *testing.T) {
	r := New()

	var fired []string
	late := r.RegisterTimer(func(eventtime float64) float64 {
		fired = append(fired, "late")
		r.End()
		return NEVER
	}, NEVER)
	r.RegisterTimer(func(eventtime float64) float64 {
		fired = append(fired, "first")
		r.UpdateTimer(late, eventtime+0.01)
		return NEVER
	}, NOW)

	if err := runFor(t, r, 5*time.Second); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(fired) != 2 || fired[0] != "first" || fired[1] != "late" {
		t.Errorf("fired = %v", fired)
	}
}

func TestRegisterCallback(t *testing.T) {
	r := New()

	completion := r.RegisterCallback(func(eventtime float64) any {
		r.End()
		return "callback result"
	}, NOW)

	if err := runFor(t, r, 5*time.Second); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !completion.Test() {
		t.Fatal("Completion should be done")
	}
	if got, _ := completion.Wait(context.Background()); got != "callback result" {
		t.Errorf("Expected 'callback result', got %v", got)
	}
	if len(r.timers) != 0 {
		t.Errorf("%d timers left registered", len(r.timers))
	}
}

func TestAsync(t *testing.T) {
	r := New()
	done := make(chan error, 1)
	go func() { done <- runFor(t, r, 5*time.Second) }()

	c, err := r.Async(func(eventtime float64) any { return 42 })
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if got, err := c.Wait(ctx); err != nil || got != 42 {
		t.Errorf("Wait = %v, %v", got, err)
	}

	r.End()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if _, err := r.Async(func(float64) any { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Async after End = %v", err)
	}
}

func TestRunTwice(t *testing.T) {
	r := New()
	started := make(chan struct{})
	r.RegisterTimer(func(eventtime float64) float64 {
		close(started)
		return NEVER
	}, NOW)

	done := make(chan error, 1)
	go func() { done <- runFor(t, r, 5*time.Second) }()
	<-started

	if err := r.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run = %v", err)
	}
	r.End()
	<-done
}

func TestCompletionWaitCancelled(t *testing.T) {
	c := newCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v", err)
	}
	c.Complete(1)
	c.Complete(2)
	if got, _ := c.Wait(context.Background()); got != 1 {
		t.Errorf("result = %v", got)
	}
}

func TestConstants(t *testing.T) {
	if NOW != 0.0 {
		t.Errorf("NOW should be 0.0, got %f", NOW)
	}
	if NEVER < 1e15 {
		t.Errorf("NEVER should be very large, got %f", NEVER)
	}
}
