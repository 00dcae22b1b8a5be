// ABOUTME: Handler is the live, in-memory object for one active conversation
// ABOUTME: At most one instance exists per UUID; the service registry enforces this

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lantern-browser/aichat/internal/content"
	"github.com/lantern-browser/aichat/internal/engine"
	"github.com/lantern-browser/aichat/internal/store"
)

// ErrRequestInProgress is returned when a new entry is submitted while a
// model request is still streaming.
var ErrRequestInProgress = errors.New("model request already in progress")

// maxDerivedTitleLen caps titles derived from the first human entry.
const maxDerivedTitleLen = 60

// HandlerObserver receives mutation events from a live handler. The service
// implements this to keep metadata, persistence, and state broadcasts in
// sync. Callbacks are always invoked after the mutation is fully applied and
// with no handler-internal locks held.
type HandlerObserver interface {
	OnEntryAdded(h *Handler, entry *store.Entry)
	OnEntryRemoved(h *Handler, entryUUID string)
	OnTitleChanged(h *Handler, title string)
	OnTokenInfoChanged(h *Handler, totalTokens, trimmedTokens uint64)
	OnClientConnectionChanged(h *Handler)
	OnRequestInProgressChanged(h *Handler, inProgress bool)
	OnAssociatedContentUpdated(h *Handler)
}

// Handler holds the turn history and transient state of one live
// conversation. External callers receive a non-owning reference valid only
// until the handler is evicted or its conversation deleted.
type Handler struct {
	uuid     string
	engine   engine.Consumer
	observer HandlerObserver
	logger   *slog.Logger

	mu                sync.Mutex
	title             string
	entries           []*store.Entry
	contentRef        content.Ref
	contentRecord     *store.Content
	clients           int
	requestInProgress bool
	hydrated          bool
	hydrationWaiters  []func()
}

func newHandler(convUUID, title string, eng engine.Consumer, observer HandlerObserver, logger *slog.Logger) *Handler {
	return &Handler{
		uuid:     convUUID,
		title:    title,
		engine:   eng,
		observer: observer,
		logger:   logger.With("component", "conversation-handler", "conversation_uuid", convUUID),
	}
}

// UUID returns the conversation's immutable identifier.
func (h *Handler) UUID() string { return h.uuid }

// ModelKey returns the key of the engine answering this conversation.
func (h *Handler) ModelKey() string { return h.engine.ModelKey() }

// Title returns the current title.
func (h *Handler) Title() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.title
}

// Entries returns a copy of the turn history.
func (h *Handler) Entries() []*store.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*store.Entry, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Clone()
	}
	return out
}

// IsRequestInProgress reports whether a model request is streaming.
func (h *Handler) IsRequestInProgress() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requestInProgress
}

// HasBoundClients reports whether any UI client is connected.
func (h *Handler) HasBoundClients() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients > 0
}

// HasAssociatedContent reports whether the handler holds a live content
// reference. A dead reference counts as no content.
func (h *Handler) HasAssociatedContent() bool {
	h.mu.Lock()
	ref := h.contentRef
	h.mu.Unlock()
	return ref.Alive()
}

// AssociatedContent returns the content handle (possibly dead or zero).
func (h *Handler) AssociatedContent() content.Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.contentRef
}

// ContentRecord returns the durable description of the associated content,
// nil if none.
func (h *Handler) ContentRecord() *store.Content {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.contentRecord == nil {
		return nil
	}
	cp := *h.contentRecord
	return &cp
}

// Hydrated reports whether the persisted archive has been applied.
func (h *Handler) Hydrated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hydrated
}

// awaitHydration runs fn once the persisted archive has been applied,
// immediately if it already was. The first waiter on an unhydrated handler
// is told to start the archive load; later waiters queue behind it.
func (h *Handler) awaitHydration(fn func()) (startLoad bool) {
	h.mu.Lock()
	if h.hydrated {
		h.mu.Unlock()
		fn()
		return false
	}
	startLoad = len(h.hydrationWaiters) == 0
	h.hydrationWaiters = append(h.hydrationWaiters, fn)
	h.mu.Unlock()
	return startLoad
}

// hydrate applies a loaded archive and releases every waiter queued on it.
// Entries added before the archive arrived are newer than anything persisted,
// so the archived turns go first and the local ones keep their place after
// them. Neither side is dropped.
func (h *Handler) hydrate(archive *store.Archive) {
	h.mu.Lock()
	if !h.hydrated {
		h.hydrated = true
		if len(h.entries) > 0 {
			h.entries = append(append([]*store.Entry(nil), archive.Entries...), h.entries...)
		} else {
			h.entries = archive.Entries
		}
		if h.contentRecord == nil && len(archive.Contents) > 0 {
			h.contentRecord = archive.Contents[len(archive.Contents)-1]
		}
	}
	waiters := h.hydrationWaiters
	h.hydrationWaiters = nil
	h.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// BindClient records a connected UI client.
func (h *Handler) BindClient() {
	h.mu.Lock()
	h.clients++
	h.mu.Unlock()
	h.observer.OnClientConnectionChanged(h)
}

// UnbindClient records a disconnected UI client.
func (h *Handler) UnbindClient() {
	h.mu.Lock()
	if h.clients > 0 {
		h.clients--
	}
	h.mu.Unlock()
	h.observer.OnClientConnectionChanged(h)
}

// SetTitle renames the conversation.
func (h *Handler) SetTitle(title string) {
	h.mu.Lock()
	if h.title == title {
		h.mu.Unlock()
		return
	}
	h.title = title
	h.mu.Unlock()
	h.observer.OnTitleChanged(h, title)
}

// AssociateContent attaches application content to the conversation,
// replacing any previous association.
func (h *Handler) AssociateContent(ref content.Ref) {
	d := ref.Get()
	if d == nil {
		// Stale handle: treat as a miss, nothing to associate.
		return
	}
	record := &store.Content{
		UUID:                  uuid.New().String(),
		ConversationUUID:      h.uuid,
		Title:                 d.Title(),
		URL:                   d.URL(),
		ContentUsedPercentage: 100,
		CreatedAt:             time.Now(),
	}
	h.mu.Lock()
	h.contentRef = ref
	h.contentRecord = record
	h.mu.Unlock()
	h.observer.OnAssociatedContentUpdated(h)
}

// DisassociateContent drops the content reference and its durable record.
func (h *Handler) DisassociateContent() {
	h.mu.Lock()
	hadAny := h.contentRef.Alive() || h.contentRecord != nil
	h.contentRef = content.Ref{}
	h.contentRecord = nil
	h.mu.Unlock()
	if hadAny {
		h.observer.OnAssociatedContentUpdated(h)
	}
}

// AddHumanEntry appends a human turn without engaging the engine. The first
// human entry derives the conversation title.
func (h *Handler) AddHumanEntry(text string) *store.Entry {
	return h.addEntry(store.RoleHuman, text)
}

// SubmitHumanEntry appends a human turn and streams the engine's response
// into an assistant entry. Returns ErrRequestInProgress if a request is
// already streaming.
func (h *Handler) SubmitHumanEntry(ctx context.Context, text string) error {
	h.mu.Lock()
	if h.requestInProgress {
		h.mu.Unlock()
		return ErrRequestInProgress
	}
	// Claimed inside the same critical section as the check, so a concurrent
	// submit can never pass the check too.
	h.requestInProgress = true
	h.mu.Unlock()
	h.observer.OnRequestInProgressChanged(h, true)

	h.addEntry(store.RoleHuman, text)

	completions, err := h.engine.GenerateAssistantResponse(ctx, h.Entries())
	if err != nil {
		h.setRequestInProgress(false)
		return err
	}

	go func() {
		var (
			response      strings.Builder
			totalTokens   uint64
			trimmedTokens uint64
			sawTokens     bool
		)
		for c := range completions {
			response.WriteString(c.Delta)
			if c.Done {
				totalTokens = c.TotalTokens
				trimmedTokens = c.TrimmedTokens
				sawTokens = true
			}
		}
		if response.Len() > 0 {
			h.addEntry(store.RoleAssistant, response.String())
		}
		if sawTokens {
			h.UpdateTokenInfo(totalTokens, trimmedTokens)
		}
		h.setRequestInProgress(false)
	}()
	return nil
}

// RemoveEntry deletes a turn by its entry UUID. Returns false if no such
// entry exists.
func (h *Handler) RemoveEntry(entryUUID string) bool {
	h.mu.Lock()
	idx := -1
	for i, e := range h.entries {
		if e.UUID == entryUUID {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.mu.Unlock()
		return false
	}
	h.entries = append(h.entries[:idx], h.entries[idx+1:]...)
	h.mu.Unlock()
	h.observer.OnEntryRemoved(h, entryUUID)
	return true
}

// UpdateTokenInfo records the engine's token accounting for the
// conversation.
func (h *Handler) UpdateTokenInfo(totalTokens, trimmedTokens uint64) {
	h.observer.OnTokenInfoChanged(h, totalTokens, trimmedTokens)
}

func (h *Handler) addEntry(role store.Role, text string) *store.Entry {
	entry := &store.Entry{
		UUID:             uuid.New().String(),
		ConversationUUID: h.uuid,
		Role:             role,
		Text:             text,
		CreatedAt:        time.Now(),
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	derivedTitle := ""
	if h.title == "" && role == store.RoleHuman {
		h.title = deriveTitle(text)
		derivedTitle = h.title
	}
	h.mu.Unlock()

	h.observer.OnEntryAdded(h, entry.Clone())
	if derivedTitle != "" {
		h.observer.OnTitleChanged(h, derivedTitle)
	}
	return entry.Clone()
}

func (h *Handler) setRequestInProgress(inProgress bool) {
	h.mu.Lock()
	if h.requestInProgress == inProgress {
		h.mu.Unlock()
		return
	}
	h.requestInProgress = inProgress
	h.mu.Unlock()
	h.observer.OnRequestInProgressChanged(h, inProgress)
}

// deriveTitle builds a title from the first human entry: first line,
// truncated to a display-friendly length.
func deriveTitle(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > maxDerivedTitleLen {
		title = string(runes[:maxDerivedTitleLen])
	}
	return title
}
