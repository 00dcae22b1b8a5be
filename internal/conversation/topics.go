// ABOUTME: Tab-organization operations: suggested topics and focus-tab selection
// ABOUTME: Premium-gated; topic suggestions are cached until the tab set changes

package conversation

import (
	"context"

	"github.com/lantern-browser/aichat/internal/engine"
	"github.com/lantern-browser/aichat/internal/entitlement"
)

// GetSuggestedTopics asks the tab-organization engine to cluster the given
// tabs into topic suggestions. Requires an active premium entitlement;
// non-premium users get ErrPremiumRequired, while an undeterminable
// entitlement surfaces entitlement.ErrCheckFailed. Results are cached and
// reused until TabDataChanged, but the premium gate is enforced on every
// call: a lapsed entitlement stops serving cached results too.
func (s *Service) GetSuggestedTopics(ctx context.Context, tabs []engine.Tab, fn func([]string, error)) {
	s.withTabOrganizationEngine(ctx, fn, func(eng engine.Consumer) {
		s.mu.Lock()
		cached := s.cachedTopics
		s.mu.Unlock()
		if cached != nil {
			fn(append([]string(nil), cached...), nil)
			return
		}

		topics, err := eng.GenerateSuggestedTopics(ctx, tabs)
		if err != nil {
			fn(nil, err)
			return
		}
		s.mu.Lock()
		s.cachedTopics = append([]string(nil), topics...)
		s.mu.Unlock()
		fn(topics, nil)
	})
}

// GetFocusTabs asks the tab-organization engine which of the given tabs
// belong to a topic. Same premium gating as GetSuggestedTopics; results are
// never cached since the topic varies per call.
func (s *Service) GetFocusTabs(ctx context.Context, tabs []engine.Tab, topic string, fn func([]string, error)) {
	s.withTabOrganizationEngine(ctx, fn, func(eng engine.Consumer) {
		fn(eng.GenerateFocusTabs(ctx, tabs, topic))
	})
}

// TabDataChanged invalidates the cached topic suggestions. Hosts call this
// when the open tab set changes.
func (s *Service) TabDataChanged() {
	s.mu.Lock()
	s.cachedTopics = nil
	s.mu.Unlock()
}

// withTabOrganizationEngine resolves entitlement, enforces the premium
// gate, and hands the shared tab-organization engine to run. Failures go to
// the error callback.
func (s *Service) withTabOrganizationEngine(ctx context.Context, fail func([]string, error), run func(engine.Consumer)) {
	s.selector.ForTabOrganization(ctx, func(eng engine.Consumer, err error) {
		if err != nil {
			fail(nil, err)
			return
		}
		if status, _ := s.entitlements.Cached(); status != entitlement.StatusActive {
			fail(nil, ErrPremiumRequired)
			return
		}
		run(eng)
	})
}
