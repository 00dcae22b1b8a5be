// ABOUTME: Service is the orchestrator owning conversation metadata and live handlers
// ABOUTME: Lazy loads from the store, broadcasts state snapshots, schedules delayed eviction

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lantern-browser/aichat/internal/content"
	"github.com/lantern-browser/aichat/internal/engine"
	"github.com/lantern-browser/aichat/internal/entitlement"
	"github.com/lantern-browser/aichat/internal/prefs"
	"github.com/lantern-browser/aichat/internal/store"
)

// ErrConversationNotFound is returned when a UUID names no known
// conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrPremiumRequired is returned for premium-gated operations when the user
// is not entitled. Distinct from entitlement.ErrCheckFailed, which means the
// entitlement could not be determined at all.
var ErrPremiumRequired = errors.New("premium subscription required")

// Options tunes the service.
type Options struct {
	// UnloadGracePeriod is the delay before an idle handler's eviction
	// re-check. Zero means DefaultUnloadGracePeriod.
	UnloadGracePeriod time.Duration
	Logger            *slog.Logger
}

// Service is the public API surface for conversation lifecycle management.
// It owns the metadata map and the live handler registry; both are mutated
// only through the service, so a single mutex covers them.
type Service struct {
	logger       *slog.Logger
	store        *store.AsyncStore
	selector     *engine.Selector
	entitlements *entitlement.Resolver
	prefs        prefs.Store
	assoc        *content.AssociationCache
	unloader     *UnloadScheduler

	mu            sync.Mutex
	conversations map[string]*store.Conversation
	handlers      map[string]*Handler
	observers     map[string]Observer
	skills        map[string]*store.Skill
	skillsState   loadState
	pendingSkills []func()
	cachedTopics  []string
	loadState     loadState
	pendingLoads  []func()
	loadEpoch     int
	tombstones    map[string]struct{}
}

// NewService wires the orchestrator. The association cache and async store
// are owned by the service after this call and closed on Shutdown.
func NewService(st *store.AsyncStore, selector *engine.Selector, entitlements *entitlement.Resolver, preferences prefs.Store, assoc *content.AssociationCache, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "conversation-service")

	s := &Service{
		logger:        logger,
		store:         st,
		selector:      selector,
		entitlements:  entitlements,
		prefs:         preferences,
		assoc:         assoc,
		conversations: make(map[string]*store.Conversation),
		handlers:      make(map[string]*Handler),
		observers:     make(map[string]Observer),
		skills:        make(map[string]*store.Skill),
		tombstones:    make(map[string]struct{}),
	}
	s.unloader = NewUnloadScheduler(opts.UnloadGracePeriod, s.canUnload, s.unloadHandler, logger)

	preferences.Watch(prefs.KeyStorageEnabled, s.onStorageEnabledChanged)

	return s
}

func newID() string { return uuid.New().String() }

// SetEncryptionKey delivers the host's encryption-readiness signal. Queued
// store operations run once the key arrives; any in-flight metadata load is
// cancelled and restarted so stale pre-key results are never applied.
func (s *Service) SetEncryptionKey(key []byte) {
	s.store.SetKey(key)
	s.ReloadConversations()
}

// Shutdown stops background work. Pending store callbacks still fire.
func (s *Service) Shutdown() {
	s.assoc.Close()
	s.store.Close()
	s.logger.Debug("conversation service shut down")
}

// persistenceEnabled reports whether mutations should be written to the
// store. Without opt-in and the storage pref, conversations are ephemeral.
func (s *Service) persistenceEnabled() bool {
	return s.prefs.GetBool(prefs.KeyAgreementAccepted) &&
		s.prefs.GetBool(prefs.KeyStorageEnabled)
}

// CreateConversation creates a new, empty conversation with a live handler.
// The metadata record exists immediately (every live handler has one) but is
// not persisted or listed until its first entry arrives. An unused handler
// is evicted after the grace period.
func (s *Service) CreateConversation() *Handler {
	eng := s.selector.ForDefault()
	now := time.Now()
	rec := &store.Conversation{
		UUID:      uuid.New().String(),
		ModelKey:  eng.ModelKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[rec.UUID] = rec
	h := newHandler(rec.UUID, "", eng, s, s.logger)
	h.hydrated = true // nothing to load for a brand new conversation
	s.handlers[rec.UUID] = h
	s.mu.Unlock()

	s.logger.Debug("conversation created", "conversation_uuid", rec.UUID)
	s.unloader.QueueMaybeUnload(h)
	return h
}

// GetLiveConversation returns the live handler for a UUID, if one exists.
// It never touches the store.
func (s *Service) GetLiveConversation(convUUID string) (*Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[convUUID]
	return h, ok
}

// GetConversation delivers the handler for a UUID, materializing it from
// the store if it is not live. Callbacks never see a handler whose archive
// is still loading; they queue until hydration completes. The callback
// receives ErrConversationNotFound for unknown UUIDs.
func (s *Service) GetConversation(convUUID string, fn func(*Handler, error)) {
	if h, ok := s.GetLiveConversation(convUUID); ok {
		s.deliverWhenHydrated(h, fn)
		return
	}

	s.loadConversationsLazy(func() {
		s.mu.Lock()
		rec, ok := s.conversations[convUUID]
		if !ok {
			s.mu.Unlock()
			fn(nil, ErrConversationNotFound)
			return
		}
		h, _ := s.getOrCreateHandlerLocked(rec)
		s.mu.Unlock()

		s.deliverWhenHydrated(h, fn)
	})
}

// deliverWhenHydrated hands the handler to fn once its archive has been
// applied. Exactly one waiter per materialization starts the archive load;
// everyone else queues behind it, so no caller can mutate a handler whose
// persisted turns have not arrived yet. A freshly materialized handler also
// gets its idle re-check queued here, mirroring CreateConversation.
func (s *Service) deliverWhenHydrated(h *Handler, fn func(*Handler, error)) {
	if h.awaitHydration(func() { fn(h, nil) }) {
		s.store.LoadArchive(h.UUID(), func(archive *store.Archive) {
			h.hydrate(archive)
			s.unloader.QueueMaybeUnload(h)
		})
	}
}

// getOrCreateHandlerLocked returns the registered handler for a record,
// constructing one if absent. Caller holds s.mu. The single-live-handler
// invariant lives here: every construction goes through this map check.
func (s *Service) getOrCreateHandlerLocked(rec *store.Conversation) (*Handler, bool) {
	if h, ok := s.handlers[rec.UUID]; ok {
		return h, true
	}
	h := newHandler(rec.UUID, rec.Title, s.selector.ForModel(rec.ModelKey), s, s.logger)
	s.handlers[rec.UUID] = h
	return h, false
}

// GetOrCreateForContent resumes the conversation most recently used with
// the given content, or creates a fresh one. Stale cache entries and dead
// delegates are treated as misses, never errors.
func (s *Service) GetOrCreateForContent(ref content.Ref, fn func(*Handler)) {
	d := ref.Get()
	if d == nil {
		fn(s.CreateConversation())
		return
	}
	contentID := d.ID()

	convUUID, ok := s.assoc.Resolve(contentID)
	if !ok {
		fn(s.createForContent(contentID, ref))
		return
	}

	s.GetConversation(convUUID, func(h *Handler, err error) {
		if err != nil {
			// The mapped conversation is gone: stale entry, miss.
			s.assoc.Disassociate(contentID)
			fn(s.createForContent(contentID, ref))
			return
		}
		if !h.HasAssociatedContent() {
			h.AssociateContent(ref)
			s.assoc.Associate(contentID, h.UUID(), ref)
		}
		fn(h)
	})
}

func (s *Service) createForContent(contentID int, ref content.Ref) *Handler {
	h := s.CreateConversation()
	h.AssociateContent(ref)
	s.assoc.Associate(contentID, h.UUID(), ref)
	return h
}

// MaybeAssociateContent attaches content to an existing conversation unless
// the conversation already tracks live content.
func (s *Service) MaybeAssociateContent(ref content.Ref, convUUID string) {
	d := ref.Get()
	if d == nil {
		return
	}
	contentID := d.ID()
	s.GetConversation(convUUID, func(h *Handler, err error) {
		if err != nil {
			s.logger.Debug("cannot associate content with unknown conversation",
				"conversation_uuid", convUUID)
			return
		}
		if h.HasAssociatedContent() {
			return
		}
		h.AssociateContent(ref)
		s.assoc.Associate(contentID, h.UUID(), ref)
	})
}

// DisassociateContent removes a content association from both the cache and
// the live handler, if any.
func (s *Service) DisassociateContent(contentID int, convUUID string) {
	s.assoc.Disassociate(contentID)
	if h, ok := s.GetLiveConversation(convUUID); ok {
		h.DisassociateContent()
	}
}

// ContentDestroyed records that a content id's delegate is gone. The cached
// association stays resolvable for the cleanup window so a quickly reopened
// page resumes its conversation, and the conversation becomes eligible for
// unload once its other retainers drop.
func (s *Service) ContentDestroyed(contentID int) {
	s.assoc.MarkGone(contentID)
	if convUUID, ok := s.assoc.Resolve(contentID); ok {
		if h, live := s.GetLiveConversation(convUUID); live {
			s.unloader.QueueMaybeUnload(h)
		}
	}
}

// ListConversations delivers metadata for all used conversations, newest
// first. Triggers the lazy load on first use.
func (s *Service) ListConversations(fn func([]*store.Conversation)) {
	s.loadConversationsLazy(func() {
		s.mu.Lock()
		out := s.visibleConversationsLocked()
		s.mu.Unlock()
		fn(out)
	})
}

// ConversationExists reports whether a UUID names a known conversation.
func (s *Service) ConversationExists(convUUID string, fn func(bool)) {
	s.loadConversationsLazy(func() {
		s.mu.Lock()
		_, ok := s.conversations[convUUID]
		s.mu.Unlock()
		fn(ok)
	})
}

// DeleteConversation removes a conversation's record, live handler, content
// associations, and persisted data. The in-memory removal is synchronous:
// once this returns, resolving the UUID (directly or through a content
// association) can never hand back the old handler. A later GetConversation
// reports not-found; a new conversation must be created instead.
func (s *Service) DeleteConversation(convUUID string) {
	s.mu.Lock()
	_, known := s.conversations[convUUID]
	delete(s.conversations, convUUID)
	h := s.handlers[convUUID]
	delete(s.handlers, convUUID)
	if s.loadState != loadLoaded {
		// A metadata load snapshot taken before this delete must not revive
		// the row when it lands.
		s.tombstones[convUUID] = struct{}{}
	}
	s.mu.Unlock()

	if h != nil {
		h.DisassociateContent()
	}
	s.assoc.DisassociateConversation(convUUID)
	// The persisted row may exist even when nothing is in memory yet, so the
	// store delete is unconditional. A missing row is not an error.
	s.store.Delete(convUUID)
	s.logger.Debug("conversation deleted", "conversation_uuid", convUUID)
	if known || h != nil {
		s.broadcastState()
	}
}

// RenameConversation sets a conversation's title. An empty title is ignored;
// untitled conversations are the unused ones, and renames never make a used
// conversation look unused.
func (s *Service) RenameConversation(convUUID, title string) {
	if title == "" {
		return
	}
	s.loadConversationsLazy(func() {
		if h, ok := s.GetLiveConversation(convUUID); ok {
			h.SetTitle(title) // record update and broadcast ride the title event
			return
		}
		s.mu.Lock()
		rec, ok := s.conversations[convUUID]
		if !ok {
			s.mu.Unlock()
			s.logger.Debug("rename for unknown conversation", "conversation_uuid", convUUID)
			return
		}
		rec.Title = title
		rec.UpdatedAt = time.Now()
		clone := rec.Clone()
		s.mu.Unlock()

		if s.persistenceEnabled() {
			s.store.UpdateMetadata(clone)
		}
		s.broadcastState()
	})
}

// DeleteConversations removes all conversations updated within the time
// range. Zero times leave that side unbounded, so zero/zero deletes
// everything.
func (s *Service) DeleteConversations(begin, end time.Time) {
	s.loadConversationsLazy(func() {
		s.mu.Lock()
		var doomed []string
		var doomedHandlers []*Handler
		for id, rec := range s.conversations {
			if !inRange(rec.UpdatedAt, begin, end) {
				continue
			}
			doomed = append(doomed, id)
			if h, ok := s.handlers[id]; ok {
				doomedHandlers = append(doomedHandlers, h)
			}
			delete(s.conversations, id)
			delete(s.handlers, id)
		}
		s.mu.Unlock()

		for _, h := range doomedHandlers {
			h.DisassociateContent()
		}
		for _, id := range doomed {
			s.assoc.DisassociateConversation(id)
		}
		s.store.DeleteAllInRange(begin, end, nil)
		s.logger.Info("conversations deleted", "count", len(doomed))
		s.broadcastState()
	})
}

// DeleteAssociatedWebContent clears web-content association data within the
// time range while leaving conversation turn text intact. Success or
// failure of the persisted deletion is reported through the callback.
func (s *Service) DeleteAssociatedWebContent(begin, end time.Time, fn func(bool)) {
	s.loadConversationsLazy(func() {
		s.mu.Lock()
		affected := make([]*Handler, 0, len(s.handlers))
		for _, h := range s.handlers {
			affected = append(affected, h)
		}
		s.mu.Unlock()

		for _, h := range affected {
			rec := h.ContentRecord()
			if rec == nil || !inRange(rec.CreatedAt, begin, end) {
				continue
			}
			if d := h.AssociatedContent().Get(); d != nil {
				s.assoc.Disassociate(d.ID())
			}
			h.DisassociateContent()
		}

		s.store.DeleteContentInRange(begin, end, func(ok bool) {
			if ok {
				s.refreshContentFlags()
			}
			if fn != nil {
				fn(ok)
			}
		})
	})
}

// refreshContentFlags re-reads persisted HasContent for records without a
// live handler. Content rows are keyed by their own creation time, which the
// metadata map does not carry, so after a ranged content delete the store is
// the only source of truth for which unloaded conversations lost theirs.
func (s *Service) refreshContentFlags() {
	s.store.LoadAll(func(rows []*store.Conversation) {
		s.mu.Lock()
		for _, row := range rows {
			rec, ok := s.conversations[row.UUID]
			if !ok {
				continue
			}
			if _, live := s.handlers[row.UUID]; live {
				continue
			}
			rec.HasContent = row.HasContent
		}
		s.mu.Unlock()
		s.broadcastState()
	})
}

// GetPremiumStatus refreshes the cached subscription status. The cache is
// advisory (no push channel exists), so callers refresh opportunistically.
func (s *Service) GetPremiumStatus(ctx context.Context, fn func(entitlement.Status, error)) {
	previous, _ := s.entitlements.Cached()
	go func() {
		status, err := s.entitlements.Refresh(ctx)
		if err == nil && status != previous {
			s.broadcastState()
		}
		fn(status, err)
	}()
}

// MarkAgreementAccepted records the user's opt-in.
func (s *Service) MarkAgreementAccepted() {
	s.prefs.SetBool(prefs.KeyAgreementAccepted, true)
	s.broadcastState()
}

// EnableStoragePref turns on conversation persistence.
func (s *Service) EnableStoragePref() {
	s.prefs.SetBool(prefs.KeyStorageEnabled, true)
	s.broadcastState()
}

// DismissStorageNotice records that the storage notice was dismissed.
func (s *Service) DismissStorageNotice() {
	s.prefs.SetBool(prefs.KeyStorageNoticeDismissed, true)
	s.broadcastState()
}

// DismissPremiumPrompt records that the premium prompt was dismissed.
func (s *Service) DismissPremiumPrompt() {
	s.prefs.SetBool(prefs.KeyPremiumPromptDismissed, true)
	s.broadcastState()
}

// HasUserOptedIn reports whether the user accepted the agreement.
func (s *Service) HasUserOptedIn() bool {
	return s.prefs.GetBool(prefs.KeyAgreementAccepted)
}

// IsStorageEnabled reports whether conversation persistence is on.
func (s *Service) IsStorageEnabled() bool {
	return s.prefs.GetBool(prefs.KeyStorageEnabled)
}

// GetIsContentAgentAllowed reports whether conversations may use content
// agent capabilities.
func (s *Service) GetIsContentAgentAllowed() bool {
	return s.prefs.GetBool(prefs.KeyContentAgentAllowed)
}

// SetIsContentAgentAllowed sets the content agent capability flag.
func (s *Service) SetIsContentAgentAllowed(allowed bool) {
	s.prefs.SetBool(prefs.KeyContentAgentAllowed, allowed)
	s.broadcastState()
}

// onStorageEnabledChanged reacts to the storage preference flipping.
// Disabling deletes all persisted data; in-memory state stays, so history
// degrades to ephemeral rather than vanishing mid-session.
func (s *Service) onStorageEnabledChanged(enabled bool) {
	if enabled {
		s.logger.Info("conversation storage enabled")
		return
	}
	s.logger.Info("conversation storage disabled, deleting persisted data")
	s.store.DeleteAllInRange(time.Time{}, time.Time{}, func(ok bool) {
		if !ok {
			s.logger.Error("failed to delete persisted data for disabled storage")
		}
	})
}

// canUnload reports whether a handler may be evicted: no bound clients, no
// live associated content, no in-progress model request.
func (s *Service) canUnload(h *Handler) bool {
	return !h.HasBoundClients() &&
		!h.HasAssociatedContent() &&
		!h.IsRequestInProgress()
}

// unloadHandler evicts a handler at grace expiry. The scheduler holds only
// a non-owning reference: if the registry entry was already removed or
// replaced by another path, this is a no-op. Eviction never removes the
// metadata record, except for unused conversations that never got an entry
// (nothing was persisted or listed for them).
func (s *Service) unloadHandler(convUUID string, h *Handler) {
	s.mu.Lock()
	if s.handlers[convUUID] != h {
		s.mu.Unlock()
		return
	}
	delete(s.handlers, convUUID)
	if rec, ok := s.conversations[convUUID]; ok && rec.Title == "" {
		delete(s.conversations, convUUID)
	}
	s.mu.Unlock()
	s.logger.Debug("conversation handler unloaded", "conversation_uuid", convUUID)
}

func inRange(t, begin, end time.Time) bool {
	if !begin.IsZero() && t.Before(begin) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
