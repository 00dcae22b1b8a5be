// ABOUTME: Asynchronous execution wrapper around the blocking Store
// ABOUTME: Single worker goroutine, gated on the host's encryption-key-ready signal

package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// opTimeout bounds each store operation so a hung call stalls only that
// operation's callback, never the caller.
const opTimeout = 10 * time.Second

// OpenFunc constructs the blocking store once key material arrives.
type OpenFunc func(key []byte) (Store, error)

// AsyncStore runs all store I/O on an isolated worker goroutine and delivers
// results through completion callbacks. Until SetKey provides the host's
// encryption key material, operations queue without touching storage. A
// failed open degrades every subsequent load to an empty result set so the
// in-memory service stays usable with cold or corrupt storage.
type AsyncStore struct {
	logger *slog.Logger
	open   OpenFunc

	jobs    chan func(Store)
	keyc    chan []byte
	done    chan struct{}
	stopped chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsyncStore creates the wrapper and starts its worker. The worker waits
// for SetKey before opening the underlying store.
func NewAsyncStore(open OpenFunc, logger *slog.Logger) *AsyncStore {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AsyncStore{
		logger:  logger.With("component", "async-store"),
		open:    open,
		jobs:    make(chan func(Store), 256),
		keyc:    make(chan []byte, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run()
	return a
}

// SetKey delivers the host's encryption-readiness signal. The first call
// opens the store and releases any queued operations; later calls are
// ignored.
func (a *AsyncStore) SetKey(key []byte) {
	select {
	case a.keyc <- key:
	default:
		a.logger.Warn("encryption key already provided, ignoring")
	}
}

// Close stops the worker after running any queued jobs. Callbacks for queued
// jobs still fire (degraded, if the store never opened).
func (a *AsyncStore) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	close(a.done)
	<-a.stopped
}

func (a *AsyncStore) run() {
	defer close(a.stopped)

	var st Store
	defer func() {
		if st != nil {
			if err := st.Close(); err != nil {
				a.logger.Error("closing store", "error", err)
			}
		}
	}()

	select {
	case key := <-a.keyc:
		opened, err := a.open(key)
		if err != nil {
			// Degrade: jobs still run, loads return empty.
			a.logger.Error("opening store failed, degrading to ephemeral", "error", err)
		} else {
			st = opened
			a.logger.Debug("store opened")
		}
	case <-a.done:
		a.drain(st)
		return
	}

	for {
		select {
		case job := <-a.jobs:
			job(st)
		case <-a.done:
			a.drain(st)
			return
		}
	}
}

func (a *AsyncStore) drain(st Store) {
	for {
		select {
		case job := <-a.jobs:
			job(st)
		default:
			return
		}
	}
}

func (a *AsyncStore) enqueue(job func(Store)) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		job(nil)
		return
	}
	select {
	case a.jobs <- job:
	case <-a.stopped:
		job(nil)
	}
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// LoadAll loads every conversation record. On failure the callback receives
// an empty slice; storage problems never surface as errors to the caller.
func (a *AsyncStore) LoadAll(fn func([]*Conversation)) {
	a.enqueue(func(st Store) {
		if st == nil {
			fn(nil)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		convs, err := st.LoadAll(ctx)
		if err != nil {
			a.logger.Error("loading conversations failed, returning empty set", "error", err)
			fn(nil)
			return
		}
		fn(convs)
	})
}

// LoadArchive loads the full detail of one conversation. Missing or failed
// loads degrade to an empty archive.
func (a *AsyncStore) LoadArchive(uuid string, fn func(*Archive)) {
	a.enqueue(func(st Store) {
		if st == nil {
			fn(&Archive{})
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		archive, err := st.LoadArchive(ctx, uuid)
		if err != nil {
			if err != ErrNotFound {
				a.logger.Error("loading archive failed", "uuid", uuid, "error", err)
			}
			fn(&Archive{})
			return
		}
		fn(archive)
	})
}

// Save persists a conversation header with its turn history and content.
// Fire-and-forget; failures are logged.
func (a *AsyncStore) Save(conv *Conversation, entries []*Entry, contents []*Content) {
	a.enqueue(func(st Store) {
		if st == nil {
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := st.Save(ctx, conv, entries, contents); err != nil {
			a.logger.Error("saving conversation failed", "uuid", conv.UUID, "error", err)
		}
	})
}

// UpdateMetadata persists header-only changes (title, tokens). A missing row
// is not an error: an unpersisted conversation simply has nothing to update.
func (a *AsyncStore) UpdateMetadata(conv *Conversation) {
	a.enqueue(func(st Store) {
		if st == nil {
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := st.UpdateMetadata(ctx, conv); err != nil && err != ErrNotFound {
			a.logger.Error("updating conversation metadata failed", "uuid", conv.UUID, "error", err)
		}
	})
}

// Delete removes one conversation's persisted data.
func (a *AsyncStore) Delete(uuid string) {
	a.enqueue(func(st Store) {
		if st == nil {
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := st.Delete(ctx, uuid); err != nil && err != ErrNotFound {
			a.logger.Error("deleting conversation failed", "uuid", uuid, "error", err)
		}
	})
}

// DeleteAllInRange removes all conversations updated within the range.
func (a *AsyncStore) DeleteAllInRange(begin, end time.Time, fn func(bool)) {
	a.enqueue(func(st Store) {
		if st == nil {
			invoke(fn, false)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := st.DeleteAllInRange(ctx, begin, end); err != nil {
			a.logger.Error("ranged delete failed", "error", err)
			invoke(fn, false)
			return
		}
		invoke(fn, true)
	})
}

// DeleteContentInRange removes only web-content rows created within the
// range, reporting success through the callback.
func (a *AsyncStore) DeleteContentInRange(begin, end time.Time, fn func(bool)) {
	a.enqueue(func(st Store) {
		if st == nil {
			invoke(fn, false)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := st.DeleteContentInRange(ctx, begin, end); err != nil {
			a.logger.Error("ranged content delete failed", "error", err)
			invoke(fn, false)
			return
		}
		invoke(fn, true)
	})
}

// ListSkills loads all persisted skills.
func (a *AsyncStore) ListSkills(fn func([]*Skill)) {
	a.enqueue(func(st Store) {
		if st == nil {
			fn(nil)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		skills, err := st.ListSkills(ctx)
		if err != nil {
			a.logger.Error("listing skills failed", "error", err)
			fn(nil)
			return
		}
		fn(skills)
	})
}

// CreateSkill persists a new skill.
func (a *AsyncStore) CreateSkill(skill *Skill, fn func(error)) {
	a.enqueue(func(st Store) {
		if st == nil {
			invoke(fn, nil)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		invoke(fn, st.CreateSkill(ctx, skill))
	})
}

// UpdateSkill persists changes to an existing skill.
func (a *AsyncStore) UpdateSkill(skill *Skill, fn func(error)) {
	a.enqueue(func(st Store) {
		if st == nil {
			invoke(fn, nil)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		invoke(fn, st.UpdateSkill(ctx, skill))
	})
}

// DeleteSkill removes a persisted skill.
func (a *AsyncStore) DeleteSkill(id string, fn func(error)) {
	a.enqueue(func(st Store) {
		if st == nil {
			invoke(fn, nil)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		invoke(fn, st.DeleteSkill(ctx, id))
	})
}

func invoke[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}
