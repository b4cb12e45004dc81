package helpers

// Random synchronisation util stash

import (
	"context"
	"sync"
	"time"

	"github.com/temoto/alive/v2"
)

// Sleep returns nil after `d`, ctx.Err() or `onStop` whichever comes first.
func Sleep(ctx context.Context, a *alive.Alive, d time.Duration, onStop error) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil

	case <-ctx.Done():
		return ctx.Err()

	case <-a.StopChan():
		return onStop
	}
}

type AtomicError struct {
	mu  sync.Mutex
	err error
	set bool
}

func (a *AtomicError) Load() (error, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err, a.set
}

// StoreOnce stores e only first time, returns same as Load() before modification.
func (a *AtomicError) StoreOnce(e error) (error, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	berr, bset := a.err, a.set
	if !bset {
		a.err, a.set = e, true
	}
	return berr, bset
}
