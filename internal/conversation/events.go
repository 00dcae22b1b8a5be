// ABOUTME: Service's HandlerObserver implementation, the sink for handler mutation events
// ABOUTME: Keeps metadata records, persistence, unload scheduling, and broadcasts in sync

package conversation

import (
	"time"

	"github.com/lantern-browser/aichat/internal/store"
)

// recordFor returns the metadata record for a handler, provided the handler
// is still the registered one for its UUID. Events from an evicted or
// deleted handler's in-flight work are dropped here, so a deleted
// conversation can never be revived by a late stream completion. A missing
// record for a registered handler is repaired: the invariant is that every
// live handler has one.
func (s *Service) recordFor(h *Handler) *store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers[h.uuid] != h {
		return nil
	}
	rec, ok := s.conversations[h.uuid]
	if !ok {
		s.logger.Warn("repairing missing record for live handler",
			"conversation_uuid", h.uuid)
		now := time.Now()
		rec = &store.Conversation{
			UUID:      h.uuid,
			Title:     h.Title(),
			ModelKey:  h.ModelKey(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.conversations[h.uuid] = rec
	}
	return rec
}

// persistArchive writes the handler's full turn history. Used for entry
// mutations, where header-only writes would lose the history delta. A handler
// still waiting on its archive never saves: the full-replace write would
// clobber the persisted turns with a partial view.
func (s *Service) persistArchive(h *Handler, rec *store.Conversation) {
	if !s.persistenceEnabled() || !h.Hydrated() {
		return
	}
	var contents []*store.Content
	if c := h.ContentRecord(); c != nil {
		contents = append(contents, c)
	}
	s.store.Save(rec, h.Entries(), contents)
}

func (s *Service) OnEntryAdded(h *Handler, entry *store.Entry) {
	rec := s.recordFor(h)
	if rec == nil {
		return
	}
	s.mu.Lock()
	rec.UpdatedAt = entry.CreatedAt
	clone := rec.Clone()
	s.mu.Unlock()

	s.persistArchive(h, clone)
	s.broadcastState()
}

func (s *Service) OnEntryRemoved(h *Handler, entryUUID string) {
	rec := s.recordFor(h)
	if rec == nil {
		return
	}
	s.mu.Lock()
	rec.UpdatedAt = time.Now()
	clone := rec.Clone()
	s.mu.Unlock()

	s.persistArchive(h, clone)
	s.broadcastState()
}

func (s *Service) OnTitleChanged(h *Handler, title string) {
	rec := s.recordFor(h)
	if rec == nil {
		return
	}
	s.mu.Lock()
	rec.Title = title
	rec.UpdatedAt = time.Now()
	clone := rec.Clone()
	s.mu.Unlock()

	if s.persistenceEnabled() {
		s.store.UpdateMetadata(clone)
	}
	s.broadcastState()
}

func (s *Service) OnTokenInfoChanged(h *Handler, totalTokens, trimmedTokens uint64) {
	rec := s.recordFor(h)
	if rec == nil {
		return
	}
	s.mu.Lock()
	rec.TotalTokens = totalTokens
	rec.TrimmedTokens = trimmedTokens
	clone := rec.Clone()
	s.mu.Unlock()

	if s.persistenceEnabled() {
		s.store.UpdateMetadata(clone)
	}
	s.broadcastState()
}

func (s *Service) OnClientConnectionChanged(h *Handler) {
	s.unloader.QueueMaybeUnload(h)
}

func (s *Service) OnRequestInProgressChanged(h *Handler, inProgress bool) {
	if !inProgress {
		s.unloader.QueueMaybeUnload(h)
	}
}

func (s *Service) OnAssociatedContentUpdated(h *Handler) {
	rec := s.recordFor(h)
	if rec == nil {
		return
	}
	hasContent := h.ContentRecord() != nil
	s.mu.Lock()
	rec.HasContent = hasContent
	clone := rec.Clone()
	s.mu.Unlock()

	// Persisted only if the conversation has entries worth keeping; an
	// association on an untitled conversation rides along on the first save.
	if clone.Title != "" {
		s.persistArchive(h, clone)
	}
	s.unloader.QueueMaybeUnload(h)
	s.broadcastState()
}
