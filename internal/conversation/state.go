// ABOUTME: Consolidated service state snapshot pushed to registered observers
// ABOUTME: Full-snapshot push, not diffs: snapshots are small and observers few

package conversation

import (
	"sort"

	"github.com/lantern-browser/aichat/internal/entitlement"
	"github.com/lantern-browser/aichat/internal/prefs"
	"github.com/lantern-browser/aichat/internal/store"
)

// State is the consolidated snapshot delivered to observers after every
// mutation. All slices and records are caller-owned copies.
type State struct {
	Conversations          []*store.Conversation
	Skills                 []*store.Skill
	PremiumStatus          entitlement.Status
	AgreementAccepted      bool
	StorageEnabled         bool
	StorageNoticeDismissed bool
	PremiumPromptDismissed bool
	ContentAgentAllowed    bool
}

// Observer receives state snapshots. Notifications are delivered after the
// mutation is fully applied to in-memory state.
type Observer interface {
	OnStateChanged(state *State)
}

// buildStateLocked assembles a snapshot. Caller holds s.mu.
func (s *Service) buildStateLocked() *State {
	state := &State{
		Conversations:          s.visibleConversationsLocked(),
		Skills:                 s.skillSnapshotLocked(),
		AgreementAccepted:      s.prefs.GetBool(prefs.KeyAgreementAccepted),
		StorageEnabled:         s.prefs.GetBool(prefs.KeyStorageEnabled),
		StorageNoticeDismissed: s.prefs.GetBool(prefs.KeyStorageNoticeDismissed),
		PremiumPromptDismissed: s.prefs.GetBool(prefs.KeyPremiumPromptDismissed),
		ContentAgentAllowed:    s.prefs.GetBool(prefs.KeyContentAgentAllowed),
	}
	state.PremiumStatus, _ = s.entitlements.Cached()
	return state
}

// visibleConversationsLocked returns cloned metadata for conversations that
// have been used (an untitled conversation has never received an entry),
// newest first. Caller holds s.mu.
func (s *Service) visibleConversationsLocked() []*store.Conversation {
	out := make([]*store.Conversation, 0, len(s.conversations))
	for _, rec := range s.conversations {
		if rec.Title == "" {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

func (s *Service) skillSnapshotLocked() []*store.Skill {
	out := make([]*store.Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		out = append(out, skill.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Shortcut < out[j].Shortcut })
	return out
}

// broadcastState pushes a fresh snapshot to every registered observer.
func (s *Service) broadcastState() {
	s.mu.Lock()
	state := s.buildStateLocked()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.OnStateChanged(state)
	}
}

// AddObserver registers an observer and immediately delivers the current
// state. Returns an id for RemoveObserver.
func (s *Service) AddObserver(o Observer) string {
	id := newID()
	s.mu.Lock()
	s.observers[id] = o
	state := s.buildStateLocked()
	s.mu.Unlock()

	o.OnStateChanged(state)
	return id
}

// RemoveObserver unregisters an observer.
func (s *Service) RemoveObserver(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}
