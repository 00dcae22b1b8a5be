// ABOUTME: Single-flight lazy loading of conversation metadata from the store
// ABOUTME: Explicit state machine (notStarted/loading/loaded) with an epoch cancellation token

package conversation

import "github.com/lantern-browser/aichat/internal/store"

type loadState int

const (
	loadNotStarted loadState = iota
	loadLoading
	loadLoaded
)

// loadConversationsLazy runs fn once conversation metadata is available.
// The first caller starts the store load; concurrent callers enqueue behind
// it; everyone queued against one in-flight load runs in enqueue order once
// it completes. fn is invoked without s.mu held.
func (s *Service) loadConversationsLazy(fn func()) {
	s.mu.Lock()
	switch s.loadState {
	case loadLoaded:
		s.mu.Unlock()
		fn()
		return
	case loadLoading:
		s.pendingLoads = append(s.pendingLoads, fn)
		s.mu.Unlock()
		return
	}

	s.loadState = loadLoading
	s.loadEpoch++
	epoch := s.loadEpoch
	s.pendingLoads = append(s.pendingLoads, fn)
	s.mu.Unlock()

	s.logger.Debug("starting lazy conversation load")
	s.store.LoadAll(func(rows []*store.Conversation) {
		s.onConversationsLoaded(epoch, rows)
	})
}

// onConversationsLoaded applies a completed load. Completions carrying a
// stale epoch (cancelled by ReloadConversations) are discarded so a
// superseded load can never overwrite newer state.
func (s *Service) onConversationsLoaded(epoch int, rows []*store.Conversation) {
	s.mu.Lock()
	if epoch != s.loadEpoch {
		s.mu.Unlock()
		s.logger.Debug("discarding stale conversation load", "epoch", epoch)
		return
	}

	for _, row := range rows {
		// Rows deleted while this load was in flight stay deleted.
		if _, deleted := s.tombstones[row.UUID]; deleted {
			continue
		}
		existing, ok := s.conversations[row.UUID]
		if !ok {
			s.conversations[row.UUID] = row
			continue
		}
		// Collision between a loaded row and in-memory state: keep the
		// record with more instance data.
		if s.moreInstanceDataLocked(existing, row) {
			continue
		}
		s.conversations[row.UUID] = row
	}

	s.loadState = loadLoaded
	s.tombstones = make(map[string]struct{})
	pending := s.pendingLoads
	s.pendingLoads = nil
	s.mu.Unlock()

	s.logger.Debug("conversation load complete",
		"loaded", len(rows), "callbacks", len(pending))
	for _, fn := range pending {
		fn()
	}
}

// moreInstanceDataLocked reports whether record a carries more live data
// than record b. Tie-break order: a live handler wins, then an associated
// content flag, then the later update, then the larger token count. Caller
// holds s.mu.
func (s *Service) moreInstanceDataLocked(a, b *store.Conversation) bool {
	if _, live := s.handlers[a.UUID]; live {
		return true
	}
	if a.HasContent != b.HasContent {
		return a.HasContent
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.TotalTokens >= b.TotalTokens
}

// ReloadConversations cancels any in-flight load and resets the metadata map
// to be re-read from storage. Records backing live handlers are retained;
// everything else is dropped and reloaded. Queued callbacks carry over and
// restart the load immediately.
func (s *Service) ReloadConversations() {
	s.mu.Lock()
	s.loadEpoch++
	epoch := s.loadEpoch

	for uuid := range s.conversations {
		if _, live := s.handlers[uuid]; !live {
			delete(s.conversations, uuid)
		}
	}

	restart := len(s.pendingLoads) > 0
	if restart {
		s.loadState = loadLoading
	} else {
		s.loadState = loadNotStarted
	}
	s.mu.Unlock()

	s.logger.Debug("conversations reload requested", "restart", restart)
	if restart {
		s.store.LoadAll(func(rows []*store.Conversation) {
			s.onConversationsLoaded(epoch, rows)
		})
	}
}
