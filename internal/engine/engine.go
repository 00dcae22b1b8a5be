// ABOUTME: Engine consumer interface and the configured model catalog
// ABOUTME: Inference itself lives behind Consumer; this package only selects and describes models

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lantern-browser/aichat/internal/store"
)

// ErrNoModels is returned when a catalog is built without a usable default.
var ErrNoModels = errors.New("no models configured")

// Tab describes one piece of open application content for tab-organization
// tasks (suggested topics, focus tabs).
type Tab struct {
	ID     int
	Title  string
	Origin string
}

// Completion is one chunk of a streamed model response.
type Completion struct {
	Delta         string
	Done          bool
	TotalTokens   uint64
	TrimmedTokens uint64
}

// Consumer produces model responses for a conversation's turn history. The
// conversation layer selects and injects which engine to use; it never
// implements inference.
type Consumer interface {
	ModelKey() string
	GenerateAssistantResponse(ctx context.Context, entries []*store.Entry) (<-chan Completion, error)
	GenerateSuggestedTopics(ctx context.Context, tabs []Tab) ([]string, error)
	GenerateFocusTabs(ctx context.Context, tabs []Tab, topic string) ([]string, error)
}

// Factory constructs a Consumer for a model. Provided by the host layer that
// owns the actual inference transport.
type Factory func(Model) Consumer

// Model describes one configured model.
type Model struct {
	Key                        string
	Name                       string
	MaxAssociatedContentLength int
	PremiumOnly                bool
	Default                    bool
}

// Catalog is the set of configured models. It is replaceable at runtime so a
// config reload can swap the model list without restarting the service.
type Catalog struct {
	mu         sync.RWMutex
	models     map[string]Model
	order      []string
	defaultKey string
}

// NewCatalog validates and indexes the configured models. Exactly one model
// must be marked default; if none is, the first model is used.
func NewCatalog(models []Model) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(models); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the model list atomically. The previous list is kept if the
// new one is invalid.
func (c *Catalog) Replace(models []Model) error {
	if len(models) == 0 {
		return ErrNoModels
	}
	indexed := make(map[string]Model, len(models))
	order := make([]string, 0, len(models))
	defaultKey := ""
	for _, m := range models {
		if m.Key == "" {
			return fmt.Errorf("model with empty key")
		}
		if _, dup := indexed[m.Key]; dup {
			return fmt.Errorf("duplicate model key %q", m.Key)
		}
		indexed[m.Key] = m
		order = append(order, m.Key)
		if m.Default && defaultKey == "" {
			defaultKey = m.Key
		}
	}
	if defaultKey == "" {
		defaultKey = models[0].Key
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = indexed
	c.order = order
	c.defaultKey = defaultKey
	return nil
}

// Lookup returns the model for a key.
func (c *Catalog) Lookup(key string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[key]
	return m, ok
}

// Default returns the default model.
func (c *Catalog) Default() Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models[c.defaultKey]
}

// List returns the models in configuration order.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Model, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.models[key])
	}
	return out
}

// TabOrganizationModel picks the model used for tab-organization tasks:
// the first premium model when the user is entitled, otherwise the default.
func (c *Catalog) TabOrganizationModel(premium bool) Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if premium {
		for _, key := range c.order {
			if c.models[key].PremiumOnly {
				return c.models[key]
			}
		}
	}
	return c.models[c.defaultKey]
}
