package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"ChatCore/module/projection/model"
)

type MemStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]*model.UserConversation // username -> conversation id -> row
	now  func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		rows: make(map[string]map[string]*model.UserConversation),
		now:  time.Now,
	}
}

func (s *MemStore) UpsertConversation(_ context.Context, row model.UserConversation) error {
	if err := checkKey(row.Username, row.ConversationID); err != nil {
		return err
	}
	r := row.Clone()
	r.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	byConv, ok := s.rows[row.Username]
	if !ok {
		byConv = make(map[string]*model.UserConversation)
		s.rows[row.Username] = byConv
	}
	if cur, ok := byConv[row.ConversationID]; ok && cur.LastMessage != nil {
		if r.LastMessage == nil || !r.LastMessage.Newer(cur.LastMessage) {
			r.LastMessage = cur.LastMessage
		}
	}
	byConv[row.ConversationID] = r
	return nil
}

func (s *MemStore) update(username, conversationID string, apply func(r *model.UserConversation)) error {
	if err := checkKey(username, conversationID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[username][conversationID]
	if !ok {
		return errRowNotFound(username, conversationID)
	}
	apply(r)
	r.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) UpdateName(_ context.Context, username, conversationID, name string) error {
	return s.update(username, conversationID, func(r *model.UserConversation) {
		r.Name = name
	})
}

func (s *MemStore) UpdateParticipants(_ context.Context, username, conversationID string, participants []string) error {
	return s.update(username, conversationID, func(r *model.UserConversation) {
		r.Participants = slices.Clone(participants)
	})
}

func (s *MemStore) UpdateLastMessage(_ context.Context, username, conversationID string, lm model.LastMessage) error {
	return s.update(username, conversationID, func(r *model.UserConversation) {
		if lm.Newer(r.LastMessage) {
			r.LastMessage = &lm
		}
	})
}

func (s *MemStore) ListConversations(_ context.Context, username string) (map[string]model.UserConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.UserConversation, len(s.rows[username]))
	for id, r := range s.rows[username] {
		out[id] = *r.Clone()
	}
	return out, nil
}
