package reactor

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) { c.now += d }

func newFake() (*Reactor, *fakeClock) {
	c := &fakeClock{}
	return New(WithClock(c.Now), WithSleep(c.Sleep)), c
}

func TestMonotonic(t *testing.T) {
	r := New()
	t1 := r.Monotonic()
	time.Sleep(10 * time.Millisecond)
	t2 := r.Monotonic()
	if t2 <= t1 {
		t.Errorf("Monotonic time not increasing: %v <= %v", t2, t1)
	}
	if elapsed := t2 - t1; elapsed < 9*time.Millisecond {
		t.Errorf("Unexpected elapsed time: %v (expected ~10ms)", elapsed)
	}
}

func TestDispatchOnce(t *testing.T) {
	r, _ := newFake()
	called := 0
	timer := r.RegisterTimer("once", func(eventtime time.Duration) time.Duration {
		called++
		return NEVER
	}, NOW)

	if next := r.Dispatch(0); next != NEVER {
		t.Errorf("next wake = %v, want NEVER", next)
	}
	r.Dispatch(time.Second)
	if called != 1 {
		t.Errorf("Timer callback called %d times, expected 1", called)
	}
	if timer.Fired() != 1 {
		t.Errorf("Fired() = %d, want 1", timer.Fired())
	}
}

func TestDispatchNotDue(t *testing.T) {
	r, _ := newFake()
	called := 0
	r.RegisterTimer("later", func(eventtime time.Duration) time.Duration {
		called++
		return NEVER
	}, 5*time.Millisecond)

	if next := r.Dispatch(time.Millisecond); next != 5*time.Millisecond {
		t.Errorf("next wake = %v, want 5ms", next)
	}
	if called != 0 {
		t.Error("Timer fired early")
	}
	r.Dispatch(5 * time.Millisecond)
	if called != 1 {
		t.Error("Timer did not fire when due")
	}
}

func TestDispatchOrder(t *testing.T) {
	r, _ := newFake()
	var order []string
	for _, name := range []string{"input", "tick", "pull"} {
		name := name
		r.RegisterTimer(name, func(eventtime time.Duration) time.Duration {
			order = append(order, name)
			return eventtime
		}, NOW)
	}
	r.Dispatch(0)
	r.Dispatch(1)
	want := []string{"input", "tick", "pull", "input", "tick", "pull"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunRepeatsUntilEnd(t *testing.T) {
	r, clock := newFake()
	count := 0
	r.RegisterTimer("loop", func(eventtime time.Duration) time.Duration {
		count++
		if count == 3 {
			r.End()
		}
		return eventtime + 10*time.Millisecond
	}, NOW)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 3 {
		t.Errorf("Timer callback called %d times, expected 3", count)
	}
	if clock.now != 20*time.Millisecond {
		t.Errorf("clock = %v, want 20ms", clock.now)
	}
	if r.IsRunning() {
		t.Error("reactor still running after End")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	r, _ := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	r.RegisterTimer("loop", func(eventtime time.Duration) time.Duration {
		count++
		if count == 2 {
			cancel()
		}
		return eventtime + time.Millisecond
	}, NOW)

	if err := r.Run(ctx); err != context.Canceled {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if count != 2 {
		t.Errorf("callback count = %d, want 2", count)
	}
}

func TestRunRealClockEnd(t *testing.T) {
	r := New()
	r.RegisterTimer("idle", func(eventtime time.Duration) time.Duration {
		return NEVER
	}, NOW)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	r.End()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after End")
	}
}

func TestUnregisterTimer(t *testing.T) {
	r, _ := newFake()
	called := 0
	timer := r.RegisterTimer("gone", func(eventtime time.Duration) time.Duration {
		called++
		return NEVER
	}, 100*time.Millisecond)
	r.UnregisterTimer(timer)

	r.Dispatch(time.Second)
	if called != 0 {
		t.Errorf("Timer callback called %d times after unregister, expected 0", called)
	}
}

func TestUpdateTimer(t *testing.T) {
	r, _ := newFake()
	called := 0
	timer := r.RegisterTimer("parked", func(eventtime time.Duration) time.Duration {
		called++
		return NEVER
	}, NEVER)

	r.Dispatch(time.Second)
	if called != 0 {
		t.Fatal("parked timer fired")
	}
	r.UpdateTimer(timer, 2*time.Second)
	if timer.Waketime() != 2*time.Second {
		t.Errorf("Waketime() = %v", timer.Waketime())
	}
	r.Dispatch(2 * time.Second)
	if called != 1 {
		t.Errorf("updated timer fired %d times, want 1", called)
	}
}

func TestRunTwice(t *testing.T) {
	r, _ := newFake()
	r.running.Store(true)
	if err := r.Run(context.Background()); err != ErrReactorRunning {
		t.Errorf("Run error = %v, want ErrReactorRunning", err)
	}
}
