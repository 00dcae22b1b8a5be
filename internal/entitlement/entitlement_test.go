// ABOUTME: Tests for the premium status Resolver
// ABOUTME: Verifies caching, failure handling, and single-flight refreshes

package entitlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChecker implements Checker with a controllable response.
type fakeChecker struct {
	mu     sync.Mutex
	status Status
	err    error
	calls  atomic.Int64
	block  chan struct{} // if non-nil, FetchPremiumStatus waits on it
}

func (f *fakeChecker) FetchPremiumStatus(ctx context.Context) (Status, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.err
}

func TestResolver_StartsUnknown(t *testing.T) {
	r := NewResolver(&fakeChecker{}, nil)
	status, fetchedAt := r.Cached()
	assert.Equal(t, StatusUnknown, status)
	assert.True(t, fetchedAt.IsZero())
}

func TestResolver_RefreshUpdatesCache(t *testing.T) {
	checker := &fakeChecker{status: StatusActive}
	r := NewResolver(checker, nil)

	status, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	cached, fetchedAt := r.Cached()
	assert.Equal(t, StatusActive, cached)
	assert.False(t, fetchedAt.IsZero())
}

func TestResolver_FailureKeepsCachedStatus(t *testing.T) {
	checker := &fakeChecker{status: StatusActive}
	r := NewResolver(checker, nil)

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	checker.mu.Lock()
	checker.err = errors.New("backend down")
	checker.mu.Unlock()

	status, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.Equal(t, StatusActive, status, "stale cached status survives a failed fetch")

	cached, _ := r.Cached()
	assert.Equal(t, StatusActive, cached)
}

func TestResolver_ConcurrentRefreshesShareOneFetch(t *testing.T) {
	checker := &fakeChecker{status: StatusInactive, block: make(chan struct{})}
	r := NewResolver(checker, nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Status, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := r.Refresh(context.Background())
			require.NoError(t, err)
			results[i] = status
		}(i)
	}

	// Let the goroutines pile onto the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(checker.block)
	wg.Wait()

	assert.Equal(t, int64(1), checker.calls.Load(), "concurrent refreshes must collapse to one backend call")
	for _, status := range results {
		assert.Equal(t, StatusInactive, status)
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "inactive", StatusInactive.String())
	assert.Equal(t, "active", StatusActive.String())
}
