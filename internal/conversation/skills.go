// ABOUTME: Skill CRUD on the service: stored shortcut/prompt/model presets
// ABOUTME: Skills are lazily loaded once, then kept in memory and mirrored to the store

package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/lantern-browser/aichat/internal/store"
)

// ErrInvalidSkill is returned when a skill is created or updated with an
// empty shortcut or prompt.
var ErrInvalidSkill = errors.New("skill requires a shortcut and a prompt")

// ensureSkillsLoaded runs fn once the skill set is in memory. Same
// single-flight shape as the conversation metadata load, but skills never
// need an epoch: nothing cancels or restarts them.
func (s *Service) ensureSkillsLoaded(fn func()) {
	s.mu.Lock()
	switch s.skillsState {
	case loadLoaded:
		s.mu.Unlock()
		fn()
		return
	case loadLoading:
		s.pendingSkills = append(s.pendingSkills, fn)
		s.mu.Unlock()
		return
	}
	s.skillsState = loadLoading
	s.pendingSkills = append(s.pendingSkills, fn)
	s.mu.Unlock()

	s.store.ListSkills(func(rows []*store.Skill) {
		s.mu.Lock()
		for _, skill := range rows {
			s.skills[skill.ID] = skill
		}
		s.skillsState = loadLoaded
		pending := s.pendingSkills
		s.pendingSkills = nil
		s.mu.Unlock()

		for _, fn := range pending {
			fn()
		}
	})
}

// GetSkills delivers all skills, sorted by shortcut.
func (s *Service) GetSkills(fn func([]*store.Skill)) {
	s.ensureSkillsLoaded(func() {
		s.mu.Lock()
		out := s.skillSnapshotLocked()
		s.mu.Unlock()
		fn(out)
	})
}

// CreateSkill stores a new shortcut preset and delivers the created record.
func (s *Service) CreateSkill(shortcut, prompt, modelKey string, fn func(*store.Skill, error)) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" || strings.TrimSpace(prompt) == "" {
		fn(nil, ErrInvalidSkill)
		return
	}
	s.ensureSkillsLoaded(func() {
		now := time.Now()
		skill := &store.Skill{
			ID:        newID(),
			Shortcut:  shortcut,
			Prompt:    prompt,
			ModelKey:  modelKey,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.mu.Lock()
		s.skills[skill.ID] = skill
		s.mu.Unlock()

		s.store.CreateSkill(skill.Clone(), func(err error) {
			if err != nil {
				s.logger.Error("persisting skill failed", "skill_id", skill.ID, "error", err)
			}
		})
		s.broadcastState()
		fn(skill.Clone(), nil)
	})
}

// UpdateSkill replaces a skill's shortcut, prompt, and model preset.
// Returns store.ErrSkillNotFound through the callback for unknown ids.
func (s *Service) UpdateSkill(id, shortcut, prompt, modelKey string, fn func(error)) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" || strings.TrimSpace(prompt) == "" {
		fn(ErrInvalidSkill)
		return
	}
	s.ensureSkillsLoaded(func() {
		s.mu.Lock()
		skill, ok := s.skills[id]
		if !ok {
			s.mu.Unlock()
			fn(store.ErrSkillNotFound)
			return
		}
		skill.Shortcut = shortcut
		skill.Prompt = prompt
		skill.ModelKey = modelKey
		skill.UpdatedAt = time.Now()
		clone := skill.Clone()
		s.mu.Unlock()

		s.store.UpdateSkill(clone, func(err error) {
			if err != nil && err != store.ErrSkillNotFound {
				s.logger.Error("updating skill failed", "skill_id", id, "error", err)
			}
		})
		s.broadcastState()
		fn(nil)
	})
}

// DeleteSkill removes a skill. Returns store.ErrSkillNotFound through the
// callback for unknown ids.
func (s *Service) DeleteSkill(id string, fn func(error)) {
	s.ensureSkillsLoaded(func() {
		s.mu.Lock()
		_, ok := s.skills[id]
		delete(s.skills, id)
		s.mu.Unlock()
		if !ok {
			fn(store.ErrSkillNotFound)
			return
		}
		s.store.DeleteSkill(id, func(err error) {
			if err != nil && err != store.ErrSkillNotFound {
				s.logger.Error("deleting skill failed", "skill_id", id, "error", err)
			}
		})
		s.broadcastState()
		fn(nil)
	})
}
