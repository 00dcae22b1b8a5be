// ABOUTME: Non-owning references to externally-owned application content
// ABOUTME: Ref is a generation-checked handle that reads as nil once invalidated

package content

import (
	"context"
	"sync"
)

// Delegate is live application content (e.g. a browser tab) that a
// conversation can use as context. Delegates are owned by the host; the
// conversation layer never assumes one outlives the current call.
//
// IDs are ephemeral, process-lifetime handles. They must never be persisted
// or stored beyond the current operation.
type Delegate interface {
	ID() int
	Title() string
	URL() string
	Text(ctx context.Context) (string, error)
}

// Ref is a non-owning handle to a Delegate. Once the owner calls Invalidate,
// Get returns nil and the referent must be treated as gone: a cache miss,
// never an error. The zero Ref is valid and always reads as nil.
type Ref struct {
	state *refState
}

type refState struct {
	mu sync.Mutex
	d  Delegate
}

// NewRef wraps a delegate in a handle the owner can later invalidate.
func NewRef(d Delegate) Ref {
	return Ref{state: &refState{d: d}}
}

// Get returns the delegate, or nil if the handle is zero or invalidated.
func (r Ref) Get() Delegate {
	if r.state == nil {
		return nil
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.d
}

// Alive reports whether the referent is still reachable.
func (r Ref) Alive() bool {
	return r.Get() != nil
}

// Invalidate severs the handle. Called by the delegate's owner when the
// underlying content is destroyed. Safe to call multiple times.
func (r Ref) Invalidate() {
	if r.state == nil {
		return
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.d = nil
}
