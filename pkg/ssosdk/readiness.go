package ssosdk

import (
	"context"
	"sync"
	"sync/atomic"
)

// EnsureFunc makes the provider session usable and reports success.
type EnsureFunc func(ctx context.Context) bool

// Readiness is read by any feature about to show identity-protected
// content.
type Readiness struct {
	warmed atomic.Bool

	mu     sync.RWMutex
	ensure EnsureFunc
}

// NewReadiness returns a cold Readiness.
func NewReadiness() *Readiness {
	return &Readiness{ensure: alwaysReady}
}

func alwaysReady(context.Context) bool { return true }

// Warmed reports whether the provider session is known to be usable.
func (r *Readiness) Warmed() bool { return r.warmed.Load() }

func (r *Readiness) SetWarmed(v bool) { r.warmed.Store(v) }

// Register installs fn as the ensure function. nil restores the no-op.
func (r *Readiness) Register(fn EnsureFunc) {
	if fn == nil {
		fn = alwaysReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure = fn
}

// Ensure returns immediately when warmed, otherwise runs the registered
// function. A false result means the caller should proceed anyway and let
// the protected content prompt for login.
func (r *Readiness) Ensure(ctx context.Context) bool {
	if r.Warmed() {
		return true
	}

	r.mu.RLock()
	fn := r.ensure
	r.mu.RUnlock()

	return fn(ctx)
}
