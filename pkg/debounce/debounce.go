// Package debounce delays keyed work until its input stops changing.
package debounce

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// Debouncer runs the last function triggered for a key once delay has passed
// without another trigger for the same key. A new trigger stops the pending
// timer and cancels the context of a run already in flight.
type Debouncer struct {
	delay time.Duration
	base  context.Context

	mu      sync.Mutex
	gen     uint64
	entries map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New returns a debouncer whose runs derive their context from base.
func New(base context.Context, delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		base:    base,
		entries: make(map[string]*entry),
	}
}

// Trigger schedules fn for key, superseding anything pending or running for it.
func (d *Debouncer) Trigger(key string, fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.supersede(key)

	d.gen++
	gen := d.gen
	ctx, cancel := context.WithCancel(d.base)
	e := &entry{gen: gen, cancel: cancel}
	d.wg.Add(1)
	e.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		defer d.release(key, gen)
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	d.entries[key] = e
}

// Cancel drops pending and running work for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.supersede(key)
}

// Pending reports the number of keys with scheduled or running work.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Stop cancels everything and waits for running functions to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key := range d.entries {
		d.supersede(key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// supersede must be called with mu held.
func (d *Debouncer) supersede(key string) {
	e, ok := d.entries[key]
	if !ok {
		return
	}
	e.cancel()
	if e.timer.Stop() {
		// The callback will never run, so settle its WaitGroup slot here.
		d.wg.Done()
	}
	delete(d.entries, key)
}

func (d *Debouncer) release(key string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok && e.gen == gen {
		e.cancel()
		delete(d.entries, key)
	}
}
