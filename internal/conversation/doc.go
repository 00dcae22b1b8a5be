// Package conversation implements the lifecycle layer for AI assistant
// conversations: a metadata registry, live handlers, lazy loading, delayed
// eviction, and a consolidated state broadcast.
//
// # Architecture
//
// The Service owns two maps guarded by one mutex:
//
//   - conversations: metadata records for every known conversation,
//     persisted or in-memory
//   - handlers: at most one live Handler per conversation UUID
//
// Handlers hold turn history and transient state (bound clients, associated
// content, request-in-progress). They report every mutation to the Service
// through the HandlerObserver interface; the Service is the only component
// that updates metadata, persists archives, schedules eviction, and pushes
// state snapshots, so those concerns never diverge.
//
// # Lazy loading
//
// Conversation metadata is read from storage on first use, single-flight:
// the first caller starts the load, concurrent callers queue behind it, and
// everyone runs in order once it completes. SetEncryptionKey and
// ReloadConversations bump a load epoch so a superseded load can never
// overwrite newer state, and deletions issued while a load is in flight are
// tombstoned so the load's snapshot cannot revive them.
//
// Handler materialization is hydration-gated: callers asking for a
// conversation that is not live queue until its archive has been applied, so
// nobody can read or mutate a handler that is missing its persisted turns.
//
// # Eviction
//
// A handler with no bound clients, no live associated content, and no
// in-progress request is queued for unload after a grace period. Eligibility
// is re-validated at expiry, so a client that reconnects within the grace
// window keeps the live handler. Evicting a handler never discards a used
// conversation's metadata; only never-used (untitled) conversations vanish
// with their handler.
//
// # Callback discipline
//
// Handler observer callbacks fire with no handler lock held, and the Service
// never invokes observers, the store, or handler methods while holding its
// own mutex. Store results arrive on the store's worker goroutine.
package conversation
