// ABOUTME: Preference and feature-flag storage consumed by the conversation service
// ABOUTME: The host supplies its own implementation; Memory is the in-process default

package prefs

import "sync"

// Preference keys used by the conversation service.
const (
	KeyAgreementAccepted      = "agreement_accepted"
	KeyStorageEnabled         = "storage_enabled"
	KeyStorageNoticeDismissed = "storage_notice_dismissed"
	KeyPremiumPromptDismissed = "premium_prompt_dismissed"
	KeyContentAgentAllowed    = "content_agent_allowed"
)

// Store is the preference backend, an external collaborator. Watch callbacks
// fire after the value has changed; they are not called for writes that do
// not change the value.
type Store interface {
	GetBool(key string) bool
	SetBool(key string, value bool)
	Watch(key string, fn func(bool))
}

// Memory is a process-local Store for hosts without their own preference
// backend, and for tests. Watch callbacks run synchronously on the writer's
// goroutine.
type Memory struct {
	mu       sync.Mutex
	values   map[string]bool
	watchers map[string][]func(bool)
}

// NewMemory creates an empty in-memory preference store. Defaults may seed
// initial values; nil is fine.
func NewMemory(defaults map[string]bool) *Memory {
	values := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &Memory{
		values:   values,
		watchers: make(map[string][]func(bool)),
	}
}

// GetBool returns the stored value, false if unset.
func (m *Memory) GetBool(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// SetBool stores a value and notifies watchers if it changed.
func (m *Memory) SetBool(key string, value bool) {
	m.mu.Lock()
	if m.values[key] == value {
		m.mu.Unlock()
		return
	}
	m.values[key] = value
	watchers := make([]func(bool), len(m.watchers[key]))
	copy(watchers, m.watchers[key])
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(value)
	}
}

// Watch registers a change callback for a key.
func (m *Memory) Watch(key string, fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers[key] = append(m.watchers[key], fn)
}
