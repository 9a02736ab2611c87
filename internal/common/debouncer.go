package common

import (
	"sync"
	"time"
)

// Debouncer is a trailing-edge debouncer with supersede-on-new-input semantics:
// - Submit replaces any pending value and restarts the quiet window.
// - fire runs once per quiet window with the last submitted value.
// - Cancel drops the pending value.
//
// A timer that already fired but lost the race to a newer Submit is ignored
// via the sequence number, so a superseded value never reaches fire.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fire    func(T)
	timer   *time.Timer
	seq     uint64
	pending T
	armed   bool
}

func NewDebouncer[T any](delay time.Duration, fire func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fire: fire}
}

// Submit schedules v, superseding whatever was pending.
// A non-positive delay fires synchronously.
func (d *Debouncer[T]) Submit(v T) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.delay <= 0 {
		d.armed = false
		var zero T
		d.pending = zero
		d.mu.Unlock()
		d.fire(v)
		return
	}
	d.pending = v
	d.armed = true
	d.timer = time.AfterFunc(d.delay, func() { d.expire(seq) })
	d.mu.Unlock()
}

func (d *Debouncer[T]) expire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || !d.armed {
		d.mu.Unlock()
		return
	}
	v := d.pending
	var zero T
	d.pending = zero
	d.armed = false
	d.timer = nil
	d.mu.Unlock()
	d.fire(v)
}

// Cancel drops the pending value. Reports whether something was pending.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	was := d.armed
	d.seq++
	d.armed = false
	var zero T
	d.pending = zero
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return was
}

// Pending reports whether a value is waiting for its quiet window.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
