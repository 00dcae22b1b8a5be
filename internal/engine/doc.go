// Package engine selects which model engine answers a conversation.
//
// Inference is an external collaborator consumed through the Consumer
// interface; the host injects a Factory that builds consumers for the
// configured models. The Catalog holds the configured model list (hot
// swappable on config reload) and the Selector picks a consumer per model
// key, falling back to the default for unknown keys. Tab-organization tasks
// get a single memoized consumer whose model choice is gated on the user's
// premium entitlement.
package engine
