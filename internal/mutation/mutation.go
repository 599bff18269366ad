// Package mutation runs remote writes against a cached query and reconciles
// the cache afterwards.
package mutation

import (
	"context"
	"sync"

	"skyprefs/pkg/cache"
	"skyprefs/pkg/logging"
)

// Phase tags a step of a mutation's lifecycle.
type Phase string

const (
	AppliedOptimistically Phase = "applied-optimistically"
	Confirmed             Phase = "confirmed"
	ReconciledAfterError  Phase = "reconciled-after-error"
)

// Observer is told about every phase a mutation goes through. err is the
// write error for ReconciledAfterError and nil otherwise.
type Observer interface {
	Observe(name string, phase Phase, err error)
}

type ObserverFunc func(name string, phase Phase, err error)

func (f ObserverFunc) Observe(name string, phase Phase, err error) { f(name, phase, err) }

// Observers fans out to each non-nil observer.
type Observers []Observer

func (o Observers) Observe(name string, phase Phase, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(name, phase, err)
		}
	}
}

// Runner binds mutations to a cache key. When KeyFunc is set it is asked
// for the key at the start of every mutation and Key is ignored.
type Runner struct {
	Cache    *cache.Cache
	Key      string
	KeyFunc  func() string
	Observer Observer
	Logger   logging.Logger
}

func (r Runner) key() string {
	if r.KeyFunc != nil {
		return r.KeyFunc()
	}
	return r.Key
}

// Optimistic applies fn to the cached value and reports the phase if the
// cache changed.
func (r Runner) Optimistic(name string, fn func(old any, ok bool) (any, bool)) bool {
	if !r.Cache.Update(r.key(), fn) {
		return false
	}
	r.observe(name, AppliedOptimistically, nil)
	return true
}

// Run performs write and then invalidates the key exactly once, refetching
// it before returning. The invalidation happens even when write fails or
// ctx is cancelled. The write error is returned unchanged.
func (r Runner) Run(ctx context.Context, name string, write func(context.Context) error) error {
	key := r.key()
	err := write(ctx)

	if rerr := r.Cache.Invalidate(context.WithoutCancel(ctx), key); rerr != nil && r.Logger != nil {
		r.Logger.WithFields(logging.Fields{
			"mutation": name,
			"key":      key,
			"error":    rerr,
		}).Warn("Reconcile refetch failed")
	}

	if err != nil {
		r.observe(name, ReconciledAfterError, err)
		return err
	}
	r.observe(name, Confirmed, nil)
	return nil
}

// Confirm reports a write whose result the caller stored in the cache
// itself, so no refetch is needed.
func (r Runner) Confirm(name string) {
	r.observe(name, Confirmed, nil)
}

func (r Runner) observe(name string, phase Phase, err error) {
	if r.Observer != nil {
		r.Observer.Observe(name, phase, err)
	}
}

// Record is an Observer that keeps what it saw.
type Record struct {
	mu     sync.Mutex
	events []Event
}

type Event struct {
	Name  string
	Phase Phase
	Err   error
}

func (r *Record) Observe(name string, phase Phase, err error) {
	r.mu.Lock()
	r.events = append(r.events, Event{Name: name, Phase: phase, Err: err})
	r.mu.Unlock()
}

func (r *Record) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Phases returns the phases recorded for name, in order.
func (r *Record) Phases(name string) []Phase {
	var out []Phase
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e.Phase)
		}
	}
	return out
}
