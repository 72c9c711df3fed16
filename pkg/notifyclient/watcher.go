package notifyclient

import (
	"context"
	"sync"
)

// Watcher keeps at most one Subscription alive and replaces it whenever the
// bound user changes, mirroring an effect that re-runs with cleanup.
type Watcher struct {
	base Options

	mu      sync.Mutex
	current *Subscription
}

// NewWatcher returns a Watcher that dials with base (its UserID is ignored).
func NewWatcher(base Options) *Watcher {
	base.UserID = ""
	return &Watcher{base: base}
}

// Bind tears down the current subscription and starts a fresh one for userID.
// The previous callback has returned for the last time before the new
// subscription dials. An empty userID leaves the Watcher unbound.
func (w *Watcher) Bind(ctx context.Context, userID string, callback Callback) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current.Close()
	w.current = nil

	opts := w.base
	opts.UserID = userID
	sub, err := Subscribe(ctx, opts, callback)
	if err != nil {
		return err
	}
	w.current = sub
	return nil
}

// Unbind tears down the current subscription, if any.
func (w *Watcher) Unbind() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current.Close()
	w.current = nil
}

// Current returns the live subscription or nil.
func (w *Watcher) Current() *Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
