// Package timectrl provides the clock abstraction used to timestamp twin
// history and to replay recorded or synthetic flights at a chosen pace.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is the clock the twin reads. Components depend on it rather than
// on time.Now so that replays and tests control time.
type SimClock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the time once d has elapsed on
	// this clock.
	After(d time.Duration) <-chan time.Time
}

// WallClock is a SimClock backed by the system clock.
type WallClock struct{}

// Now returns time.Now in UTC.
func (WallClock) Now() time.Time { return time.Now().UTC() }

// After wraps time.After.
func (WallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime advances one Tick per wall-clock Tick.
	RealTime Mode = iota
	// Accelerated advances by Tick as fast as listeners keep up.
	Accelerated
)

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// TimeController drives simulation time and notifies registered listeners on
// every tick. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	listeners   []func(time.Time)
	timers      []timer
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// After returns a channel that fires once simulation time has advanced by d.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	deadline := tc.currentTime.Add(d)
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.timers = append(tc.timers, timer{deadline: deadline, ch: ch})
	return ch
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// SetTime jumps the clock. Listeners are not invoked; due timers fire.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.fireTimersLocked()
	tc.mu.Unlock()
}

// Step advances by one Tick and runs the listeners synchronously.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	now := tc.currentTime
	tc.fireTimersLocked()
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

func (tc *TimeController) fireTimersLocked() {
	kept := tc.timers[:0]
	for _, t := range tc.timers {
		if !t.deadline.After(tc.currentTime) {
			t.ch <- tc.currentTime
			continue
		}
		kept = append(kept, t)
	}
	tc.timers = kept
}

// Run steps the clock from StartTime until duration has elapsed (forever
// when duration is zero) or ctx is cancelled.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	tc.SetTime(tc.StartTime)

	var ticker *time.Ticker
	if tc.Mode == RealTime {
		ticker = time.NewTicker(tc.Tick)
		defer ticker.Stop()
	}

	for elapsed := time.Duration(0); duration <= 0 || elapsed < duration; elapsed += tc.Tick {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		tc.Step()
	}
	return nil
}

// Start runs the controller for the specified duration in a separate
// goroutine. The returned channel is closed when it finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tc.Run(context.Background(), duration)
	}()
	return done
}
