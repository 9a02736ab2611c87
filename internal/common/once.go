package common

import "sync"

// KeyedOnce runs an initialization at most once per key.
//
// Only the most recent key is tracked: switching keys forgets the previous one.
// A failed run does not count, the next Do for the same key runs again.
// Concurrent callers for the same key wait for the in-flight run and share its error.
type KeyedOnce struct {
	mu       sync.Mutex
	key      string
	done     bool
	inflight *onceCall
}

type onceCall struct {
	done chan struct{}
	err  error
}

// Do runs fn unless key already completed successfully.
// ran reports whether this caller executed fn.
func (o *KeyedOnce) Do(key string, fn func() error) (ran bool, err error) {
	o.mu.Lock()
	if key != o.key {
		o.key = key
		o.done = false
		o.inflight = nil
	}
	if o.done {
		o.mu.Unlock()
		return false, nil
	}
	if c := o.inflight; c != nil {
		o.mu.Unlock()
		<-c.done
		return false, c.err
	}
	c := &onceCall{done: make(chan struct{})}
	o.inflight = c
	o.mu.Unlock()

	err = fn()

	o.mu.Lock()
	if o.key == key && o.inflight == c {
		o.inflight = nil
		o.done = err == nil
	}
	o.mu.Unlock()
	c.err = err
	close(c.done)
	return true, err
}
