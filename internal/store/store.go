// ABOUTME: Store interface and data types for conversation persistence
// ABOUTME: Defines Conversation, Entry, Content, Skill structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrSkillNotFound is returned when a skill id does not exist
var ErrSkillNotFound = errors.New("skill not found")

// Role identifies the author of a conversation entry
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Conversation is the metadata record for a single conversation. It is the
// authoritative index entry for a known conversation, independent of whether
// a live handler exists for it.
type Conversation struct {
	UUID          string
	Title         string
	ModelKey      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TotalTokens   uint64
	TrimmedTokens uint64
	HasContent    bool
}

// Clone returns a copy safe to hand to callers outside the owning service.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Entry is a single turn (prompt or response) within a conversation.
type Entry struct {
	UUID             string
	ConversationUUID string
	Role             Role
	Text             string
	CreatedAt        time.Time
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// Content describes application content (e.g. a web page) that was associated
// with a conversation. Only the durable description is persisted; the
// ephemeral content id never is.
type Content struct {
	UUID                  string
	ConversationUUID      string
	Title                 string
	URL                   string
	ContentUsedPercentage int
	CreatedAt             time.Time
}

// Archive is the full persisted detail of one conversation.
type Archive struct {
	Entries  []*Entry
	Contents []*Content
}

// Skill is a stored shortcut -> prompt -> model preset, independent of any
// conversation.
type Skill struct {
	ID        string
	Shortcut  string
	Prompt    string
	ModelKey  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy of the skill.
func (s *Skill) Clone() *Skill {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Store defines the blocking persistence interface for conversations and
// skills. All methods accept context.Context for cancellation support.
type Store interface {
	// Conversations
	LoadAll(ctx context.Context) ([]*Conversation, error)
	LoadArchive(ctx context.Context, uuid string) (*Archive, error)
	Save(ctx context.Context, conv *Conversation, entries []*Entry, contents []*Content) error
	UpdateMetadata(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, uuid string) error

	// Bulk deletion for privacy flows. A zero begin or end time leaves that
	// side of the range unbounded.
	DeleteAllInRange(ctx context.Context, begin, end time.Time) error
	DeleteContentInRange(ctx context.Context, begin, end time.Time) error

	// Skills
	ListSkills(ctx context.Context) ([]*Skill, error)
	CreateSkill(ctx context.Context, skill *Skill) error
	UpdateSkill(ctx context.Context, skill *Skill) error
	DeleteSkill(ctx context.Context, id string) error

	Close() error
}
