// ABOUTME: UnloadScheduler decides when an idle handler may be evicted
// ABOUTME: Eviction is deferred by a grace delay and re-validated at expiry

package conversation

import (
	"log/slog"
	"time"
)

// DefaultUnloadGracePeriod is the delay between a handler becoming idle and
// its eviction re-check.
const DefaultUnloadGracePeriod = 5 * time.Second

// UnloadScheduler queues delayed eviction of idle handlers. The delay exists
// for two reasons: references held by the current call stack stay valid
// after an unload-worthy event, and a reconnecting client gets a window to
// resume the handler instead of forcing a reload. Eligibility is always
// re-checked at delay expiry; the snapshot taken when scheduling is never
// trusted.
type UnloadScheduler struct {
	grace     time.Duration
	canUnload func(*Handler) bool
	unload    func(uuid string, h *Handler)
	logger    *slog.Logger
}

// NewUnloadScheduler wires the scheduler to the registry's eligibility check
// and eviction callback. The unload callback must tolerate handlers that
// were already removed or replaced; it holds only a non-owning reference.
func NewUnloadScheduler(grace time.Duration, canUnload func(*Handler) bool, unload func(string, *Handler), logger *slog.Logger) *UnloadScheduler {
	if grace <= 0 {
		grace = DefaultUnloadGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnloadScheduler{
		grace:     grace,
		canUnload: canUnload,
		unload:    unload,
		logger:    logger.With("component", "unload-scheduler"),
	}
}

// QueueMaybeUnload schedules a delayed eviction re-check if the handler is
// currently eligible. Ineligible handlers are left alone; a later
// idle-making event will queue them again.
func (u *UnloadScheduler) QueueMaybeUnload(h *Handler) {
	if h == nil || !u.canUnload(h) {
		return
	}
	time.AfterFunc(u.grace, func() { u.maybeUnload(h) })
}

// maybeUnload runs at delay expiry. State may have changed since
// scheduling, so eligibility is validated again before eviction.
func (u *UnloadScheduler) maybeUnload(h *Handler) {
	if !u.canUnload(h) {
		u.logger.Debug("handler no longer unloadable, keeping",
			"conversation_uuid", h.UUID())
		return
	}
	u.unload(h.UUID(), h)
}
