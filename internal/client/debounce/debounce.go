// Package debounce coalesces bursts of calls into one, fired after the
// input has been quiet for a fixed delay.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Debouncer runs the most recent Trigger after delay. A newer Trigger stops
// the pending timer and cancels the context of a run already in progress,
// so only the latest call's result is worth delivering.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	seq    uint64
}

func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn. fn receives a context that is cancelled when a later
// Trigger or Stop supersedes it, and reports through current whether it is
// still the latest call.
func (d *Debouncer) Trigger(parent context.Context, fn func(ctx context.Context, current func() bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.seq++
	seq := d.seq

	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel

	current := func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.seq == seq && ctx.Err() == nil
	}

	d.timer = time.AfterFunc(d.delay, func() {
		if !current() {
			return
		}
		fn(ctx, current)
	})
}

// Stop drops any pending call and cancels a running one.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.seq++
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
