// Package arbiter guards shared peripherals with one binary lock each.
//
// A Peripheral is named by a short string ("oled", "i2c0", ...). Locks are
// created once with Init and live for the life of the process. Acquire blocks
// until the lock is free, the timeout elapses or the context ends; a failed
// acquisition means "peripheral busy" and callers skip the mutation.
//
// Locks are not reentrant: a goroutine holding a peripheral must not acquire
// it again. Release must only be called by the holder.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Forever makes Acquire wait without a bound. The display uses it.
const Forever time.Duration = -1

var (
	// ErrNotInitialized is returned for a peripheral that has no lock.
	ErrNotInitialized = errors.New("arbiter: peripheral not initialized")
	// ErrTimeout is returned when the lock stayed busy for the whole timeout.
	ErrTimeout = errors.New("arbiter: peripheral busy")
	// ErrNotHeld is returned by Release on a lock nobody holds.
	ErrNotHeld = errors.New("arbiter: release of a free peripheral")
)

// Peripheral names a shared hardware resource.
type Peripheral string

const (
	// Display is the OLED character display.
	Display Peripheral = "oled"
)

// Bus returns the Peripheral for I²C port n.
func Bus(n int) Peripheral {
	return Peripheral(fmt.Sprintf("i2c%d", n))
}

// Lock is a binary semaphore: a one-slot channel that is full while held.
type Lock struct {
	name Peripheral
	sem  chan struct{}
	log  zerolog.Logger
}

func newLock(p Peripheral, log zerolog.Logger) *Lock {
	return &Lock{
		name: p,
		sem:  make(chan struct{}, 1),
		log:  log.With().Str("peripheral", string(p)).Logger(),
	}
}

// Acquire takes the lock. timeout < 0 waits forever, 0 tries exactly once.
// A nil Lock reports ErrNotInitialized without blocking.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l == nil {
		return ErrNotInitialized
	}
	select {
	case l.sem <- struct{}{}:
		l.log.Debug().Msg("taken")
		return nil
	default:
	}
	if timeout == 0 {
		return fmt.Errorf("%s: %w", l.name, ErrTimeout)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case l.sem <- struct{}{}:
		l.log.Debug().Msg("taken")
		return nil
	case <-expired:
		l.log.Debug().Dur("timeout", timeout).Msg("busy")
		return fmt.Errorf("%s: %w", l.name, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil {
		return ErrNotInitialized
	}
	select {
	case <-l.sem:
		l.log.Debug().Msg("released")
		return nil
	default:
		return fmt.Errorf("%s: %w", l.name, ErrNotHeld)
	}
}

// Held reports whether somebody currently holds the lock.
func (l *Lock) Held() bool {
	return l != nil && len(l.sem) == 1
}

// Arbiter owns the lock of every initialized peripheral.
type Arbiter struct {
	mu    sync.RWMutex
	locks map[Peripheral]*Lock
	log   zerolog.Logger
}

// New returns an Arbiter with no peripherals initialized.
func New(log zerolog.Logger) *Arbiter {
	return &Arbiter{
		locks: map[Peripheral]*Lock{},
		log:   log,
	}
}

// Init creates the lock for p. Calling it again for the same peripheral is a
// no-op.
func (a *Arbiter) Init(p Peripheral) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.locks[p]; ok {
		return
	}
	a.locks[p] = newLock(p, a.log)
	a.log.Info().Str("peripheral", string(p)).Msg("lock initialized")
}

// Lock returns the lock for p, or nil when p was never initialized. The nil
// Lock is usable and reports ErrNotInitialized.
func (a *Arbiter) Lock(p Peripheral) *Lock {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.locks[p]
}

// Acquire takes the lock of p; see Lock.Acquire.
func (a *Arbiter) Acquire(ctx context.Context, p Peripheral, timeout time.Duration) error {
	l := a.Lock(p)
	if l == nil {
		a.log.Warn().Str("peripheral", string(p)).Msg("lock not initialized")
		return fmt.Errorf("%s: %w", p, ErrNotInitialized)
	}
	return l.Acquire(ctx, timeout)
}

// Release frees the lock of p.
func (a *Arbiter) Release(p Peripheral) error {
	l := a.Lock(p)
	if l == nil {
		a.log.Warn().Str("peripheral", string(p)).Msg("lock not initialized")
		return fmt.Errorf("%s: %w", p, ErrNotInitialized)
	}
	return l.Release()
}

// With runs fn while holding p. It returns the acquisition error without
// calling fn when p could not be taken.
func (a *Arbiter) With(ctx context.Context, p Peripheral, timeout time.Duration, fn func() error) error {
	if err := a.Acquire(ctx, p, timeout); err != nil {
		return err
	}
	defer a.Release(p)
	return fn()
}
