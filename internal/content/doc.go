// Package content models ephemeral, externally-owned application content
// (browser tabs and similar) and its association with conversations.
//
// Delegates are owned by the host application and can disappear at any time,
// so they are only ever held through Ref, a generation-checked non-owning
// handle that reads as nil once invalidated. AssociationCache remembers which
// conversation was last used with which content id so that returning to the
// content resumes the conversation; stale entries resolve as misses and are
// eventually swept.
package content
