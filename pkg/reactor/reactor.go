// Package reactor runs timers on the calling goroutine.
//
// The control loop is cooperative: every timer callback runs to
// completion on the goroutine that called Run, so the components it
// drives need no locking. Timers return their next wake time; the
// reactor sleeps only until the earliest one is due.
package reactor

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"
)

const (
	// NOW schedules a timer for the next dispatch.
	NOW time.Duration = 0
	// NEVER parks a timer until UpdateTimer is called.
	NEVER time.Duration = math.MaxInt64
)

// maxSleep bounds a single wait so End and context cancellation are seen promptly.
const maxSleep = time.Second

var ErrReactorRunning = errors.New("reactor: already running")

// TimerCallback is called when a timer fires with the dispatch time and
// returns the next wake time. Return NEVER to park the timer.
type TimerCallback func(eventtime time.Duration) time.Duration

// Timer is a registered timer.
type Timer struct {
	id       uint64
	name     string
	callback TimerCallback
	waketime time.Duration
	fired    uint64
}

// Name returns the name the timer was registered with.
func (t *Timer) Name() string { return t.name }

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() time.Duration { return t.waketime }

// Fired returns how many times the callback ran.
func (t *Timer) Fired() uint64 { return t.fired }

// Clock returns monotonic time since an arbitrary origin.
type Clock func() time.Duration

// Option configures a Reactor.
type Option func(*Reactor)

// WithClock replaces the monotonic clock, for tests.
func WithClock(c Clock) Option {
	return func(r *Reactor) { r.clock = c }
}

// WithSleep replaces the wait between dispatches, for tests. The
// function must return early when ctx is done.
func WithSleep(s func(ctx context.Context, d time.Duration)) Option {
	return func(r *Reactor) { r.sleep = s }
}

// Reactor dispatches timers. Timer registration and dispatch must happen
// on the goroutine running Run; End may be called from anywhere.
type Reactor struct {
	timers      []*Timer
	nextTimerID uint64
	nextWake    time.Duration

	clock Clock
	sleep func(ctx context.Context, d time.Duration)

	running atomic.Bool
	stop    atomic.Bool
	wake    chan struct{}
}

// New creates a new Reactor.
func New(opts ...Option) *Reactor {
	start := time.Now()
	r := &Reactor{
		nextWake: NEVER,
		clock:    func() time.Duration { return time.Since(start) },
		wake:     make(chan struct{}, 1),
	}
	r.sleep = r.defaultSleep
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Monotonic returns the current monotonic time.
func (r *Reactor) Monotonic() time.Duration {
	return r.clock()
}

// RegisterTimer registers a new timer with the given callback and wake time.
func (r *Reactor) RegisterTimer(name string, callback TimerCallback, waketime time.Duration) *Timer {
	r.nextTimerID++
	timer := &Timer{
		id:       r.nextTimerID,
		name:     name,
		callback: callback,
		waketime: waketime,
	}
	r.timers = append(r.timers, timer)
	if waketime < r.nextWake {
		r.nextWake = waketime
	}
	return timer
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	timer.waketime = NEVER
	for i, t := range r.timers {
		if t.id == timer.id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
}

// UpdateTimer changes a timer's wake time.
func (r *Reactor) UpdateTimer(timer *Timer, waketime time.Duration) {
	timer.waketime = waketime
	if waketime < r.nextWake {
		r.nextWake = waketime
	}
}

// Dispatch fires every timer due at eventtime, in registration order,
// and returns the earliest remaining wake time.
func (r *Reactor) Dispatch(eventtime time.Duration) time.Duration {
	if eventtime < r.nextWake {
		return r.nextWake
	}
	r.nextWake = NEVER

	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)
	for _, timer := range timers {
		if eventtime >= timer.waketime {
			timer.waketime = NEVER
			next := timer.callback(eventtime)
			timer.fired++
			if next < timer.waketime {
				timer.waketime = next
			}
		}
		if timer.waketime < r.nextWake {
			r.nextWake = timer.waketime
		}
	}
	return r.nextWake
}

// Run dispatches timers on the calling goroutine until ctx is done or End
// is called.
func (r *Reactor) Run(ctx context.Context) error {
	if r.running.Swap(true) {
		return ErrReactorRunning
	}
	defer r.running.Store(false)
	r.stop.Store(false)

	for !r.stop.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := r.clock()
		next := r.Dispatch(now)
		if r.stop.Load() {
			break
		}
		if delay := next - r.clock(); delay > 0 {
			if delay > maxSleep {
				delay = maxSleep
			}
			r.sleep(ctx, delay)
		}
	}
	return nil
}

// End stops Run after the current dispatch.
func (r *Reactor) End() {
	r.stop.Store(true)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// IsRunning reports whether Run is active.
func (r *Reactor) IsRunning() bool {
	return r.running.Load()
}

func (r *Reactor) defaultSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.wake:
	case <-ctx.Done():
	}
}
