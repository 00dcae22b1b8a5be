// Package store provides persistent storage for conversations using SQLite.
//
// # Architecture
//
// Two layers:
//
//   - SQLiteStore: blocking implementation of the Store interface
//   - AsyncStore: worker-goroutine wrapper delivering results via callbacks
//
// The conversation service only ever talks to AsyncStore, so store I/O never
// blocks conversation handling. The AsyncStore is gated on the host's
// encryption-key-ready signal (SetKey); operations issued before the key
// arrives queue in order and run once storage opens.
//
// # Data Models
//
//   - Conversation: metadata header (uuid, title, timestamps, token counts)
//   - Entry: a single turn (human or assistant) within a conversation
//   - Content: durable description of associated application content
//   - Archive: full detail of one conversation (entries + contents)
//   - Skill: shortcut -> prompt -> model preset
//
// # Encryption
//
// Titles, turn text, and content titles/URLs are sealed at rest with an
// XChaCha20-Poly1305 AEAD whose key is derived (HKDF-SHA256) from host key
// material. Rows that fail to decrypt are skipped on load, not fatal.
//
// # Error Handling
//
//   - ErrNotFound: requested conversation does not exist
//   - ErrSkillNotFound: requested skill id does not exist
//
// A failed LoadAll surfaces to AsyncStore callers as an empty result set:
// the service must remain usable with cold or corrupt storage.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:", ...) for tests.
package store
