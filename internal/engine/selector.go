// ABOUTME: Selector produces engine consumers for model keys and tab-organization tasks
// ABOUTME: Tab-organization engine is memoized and gated on resolved premium status

package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lantern-browser/aichat/internal/entitlement"
)

// Selector builds Consumer instances from the catalog via the injected
// factory. Per-conversation engines are built on demand; the
// tab-organization engine is created once and reused until the premium
// status it was built under changes.
type Selector struct {
	catalog      *Catalog
	factory      Factory
	entitlements *entitlement.Resolver
	logger       *slog.Logger

	mu           sync.Mutex
	tabOrg       Consumer
	tabOrgStatus entitlement.Status
}

// NewSelector creates a selector.
func NewSelector(catalog *Catalog, factory Factory, entitlements *entitlement.Resolver, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		catalog:      catalog,
		factory:      factory,
		entitlements: entitlements,
		logger:       logger.With("component", "engine-selector"),
	}
}

// ForModel returns a consumer for the given model key. An unknown key falls
// back to the default model rather than failing; the caller always gets a
// usable engine.
func (s *Selector) ForModel(key string) Consumer {
	model, ok := s.catalog.Lookup(key)
	if !ok {
		s.logger.Warn("unknown model key, using default", "model_key", key)
		model = s.catalog.Default()
	}
	return s.factory(model)
}

// ForDefault returns a consumer for the default model.
func (s *Selector) ForDefault() Consumer {
	return s.factory(s.catalog.Default())
}

// ForTabOrganization delivers the shared tab-organization consumer. The
// model choice depends on premium entitlement, so if status is still unknown
// a fetch is triggered first and construction deferred until it resolves; a
// failed fetch is surfaced to the callback. The callback may run
// synchronously when status is already known.
func (s *Selector) ForTabOrganization(ctx context.Context, fn func(Consumer, error)) {
	status, _ := s.entitlements.Cached()
	if status == entitlement.StatusUnknown {
		go func() {
			resolved, err := s.entitlements.Refresh(ctx)
			if err != nil {
				fn(nil, err)
				return
			}
			fn(s.tabOrganizationConsumer(resolved), nil)
		}()
		return
	}
	fn(s.tabOrganizationConsumer(status), nil)
}

// InvalidateTabOrganization drops the memoized engine so the next request
// rebuilds it (e.g. after a model catalog reload).
func (s *Selector) InvalidateTabOrganization() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabOrg = nil
	s.tabOrgStatus = entitlement.StatusUnknown
}

func (s *Selector) tabOrganizationConsumer(status entitlement.Status) Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabOrg != nil && s.tabOrgStatus == status {
		return s.tabOrg
	}
	model := s.catalog.TabOrganizationModel(status == entitlement.StatusActive)
	s.logger.Debug("building tab-organization engine",
		"model_key", model.Key, "premium_status", status.String())
	s.tabOrg = s.factory(model)
	s.tabOrgStatus = status
	return s.tabOrg
}
