// ABOUTME: Premium/subscription status checks against the entitlement backend
// ABOUTME: Resolver caches the last-known status; concurrent refreshes share one fetch

package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCheckFailed is returned when the entitlement backend could not be
// queried. It is distinct from a successful "not premium" answer.
var ErrCheckFailed = errors.New("entitlement check failed")

// Status is the subscription state gating premium features.
type Status int

const (
	StatusUnknown Status = iota
	StatusInactive
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	default:
		return "unknown"
	}
}

// Checker is the external subscription backend. It provides no push
// notifications, so callers treat cached results as advisory.
type Checker interface {
	FetchPremiumStatus(ctx context.Context) (Status, error)
}

// Resolver caches the last-known premium status and refreshes it
// opportunistically. Concurrent refreshes are collapsed into a single
// backend call.
type Resolver struct {
	checker Checker
	logger  *slog.Logger
	group   singleflight.Group

	mu        sync.Mutex
	status    Status
	fetchedAt time.Time
}

// NewResolver creates a resolver starting at StatusUnknown.
func NewResolver(checker Checker, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		checker: checker,
		logger:  logger.With("component", "entitlement"),
	}
}

// Cached returns the last-known status and when it was fetched. A zero time
// means no fetch has succeeded yet.
func (r *Resolver) Cached() (Status, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.fetchedAt
}

// Refresh queries the backend, updating the cache on success. A failed fetch
// keeps the previous cached status and returns ErrCheckFailed. Concurrent
// callers share a single in-flight fetch.
func (r *Resolver) Refresh(ctx context.Context) (Status, error) {
	v, err, _ := r.group.Do("premium-status", func() (any, error) {
		status, err := r.checker.FetchPremiumStatus(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.status = status
		r.fetchedAt = time.Now()
		r.mu.Unlock()
		return status, nil
	})
	if err != nil {
		r.logger.Error("premium status fetch failed", "error", err)
		cached, _ := r.Cached()
		return cached, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	return v.(Status), nil
}
