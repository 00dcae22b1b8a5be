// ABOUTME: Bidirectional cache mapping ephemeral content ids to conversation UUIDs
// ABOUTME: Entries whose delegate has been gone past a window are swept by a cleanup goroutine

package content

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCleanupWindow is how long an association with a destroyed
	// delegate is kept before it becomes eligible for removal.
	DefaultCleanupWindow = 10 * time.Minute

	// DefaultCleanupInterval is how often the sweep runs.
	DefaultCleanupInterval = time.Minute
)

// association is one cache entry. It is a cache, not a source of truth: a
// stale entry is a miss, never an error.
type association struct {
	uuid      string
	ref       Ref
	goneSince time.Time // zero while the delegate is still alive
}

// AssociationCache maps ephemeral content ids to conversation UUIDs so that
// returning to previously-viewed content resumes its most recent
// conversation. One content id maps to at most one conversation at a time;
// a new association overwrites, it never merges. A background sweep removes
// entries whose delegate has been destroyed for longer than the cleanup
// window, bounding growth across a long session.
type AssociationCache struct {
	mu      sync.RWMutex
	entries map[int]*association
	window  time.Duration
	done    chan struct{}
	closed  bool
	logger  *slog.Logger
}

// NewAssociationCache creates the cache and starts its cleanup goroutine.
// Zero durations fall back to the defaults.
func NewAssociationCache(window, interval time.Duration, logger *slog.Logger) *AssociationCache {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultCleanupWindow
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	c := &AssociationCache{
		entries: make(map[int]*association),
		window:  window,
		done:    make(chan struct{}),
		logger:  logger.With("component", "content-cache"),
	}
	go c.cleanup(interval)
	return c
}

// Associate inserts or overwrites the mapping for a content id.
func (c *AssociationCache) Associate(contentID int, uuid string, ref Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[contentID] = &association{uuid: uuid, ref: ref}
}

// Resolve returns the conversation UUID for a content id, if one is cached.
func (c *AssociationCache) Resolve(contentID int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[contentID]
	if !ok {
		return "", false
	}
	return entry.uuid, true
}

// MarkGone records that a content id's delegate has been destroyed, starting
// its cleanup-window clock immediately instead of waiting for the next sweep
// to notice. Unknown ids are ignored.
func (c *AssociationCache) MarkGone(contentID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[contentID]
	if !ok || !entry.goneSince.IsZero() {
		return
	}
	entry.goneSince = time.Now()
}

// Disassociate removes the mapping for a content id.
func (c *AssociationCache) Disassociate(contentID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, contentID)
}

// DisassociateConversation removes every mapping pointing at the given
// conversation. Used when a conversation is deleted.
func (c *AssociationCache) DisassociateConversation(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if entry.uuid == uuid {
			delete(c.entries, id)
		}
	}
}

// Len returns the number of cached associations.
func (c *AssociationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *AssociationCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup(time.Now())
		case <-c.done:
			return
		}
	}
}

// runCleanup marks entries whose delegate has died and removes those dead
// longer than the window. Exposed to tests via the clock parameter.
func (c *AssociationCache) runCleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.entries {
		if entry.ref.Alive() {
			entry.goneSince = time.Time{}
			continue
		}
		if entry.goneSince.IsZero() {
			entry.goneSince = now
			continue
		}
		if now.Sub(entry.goneSince) > c.window {
			delete(c.entries, id)
			c.logger.Debug("swept stale content association",
				"content_id", id, "conversation_uuid", entry.uuid)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *AssociationCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
