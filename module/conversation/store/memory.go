package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"ChatCore/module/conversation/model"
	"ChatCore/tools/errs"
	"ChatCore/tools/ids"
)

// MemStore keeps conversations in process memory. Values never escape: every
// read returns a deep copy.
type MemStore struct {
	mu    sync.RWMutex
	convs map[string]*model.Conversation

	newID func() string
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		convs: make(map[string]*model.Conversation),
		newID: ids.GenerateString,
		now:   time.Now,
	}
}

func (s *MemStore) Create(_ context.Context, name string, participants []string, isGroup bool, creator string) (string, error) {
	c, err := newConversation(s.newID(), name, participants, isGroup, creator, s.now())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[c.ID]; ok {
		return "", errs.ErrInternal.WrapMsg("duplicate conversation id", "conversationId", c.ID)
	}
	s.convs[c.ID] = c
	return c.ID, nil
}

func (s *MemStore) AppendMessage(_ context.Context, conversationID, sender, content string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	if err := checkSender(c, sender, content); err != nil {
		return nil, err
	}
	m := model.Message{
		Index:       len(c.Messages),
		Sender:      sender,
		Content:     content,
		Receivers:   model.Without(c.Participants, sender),
		DeliveredTo: []string{},
		SeenBy:      []string{},
		IsVisible:   true,
		SentAt:      s.now(),
	}
	c.Messages = append(c.Messages, m)
	return m.Clone(), nil
}

func (s *MemStore) Rename(_ context.Context, conversationID, newName string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	c.Name = newName
	return c.Info(), nil
}

func (s *MemStore) AddParticipant(_ context.Context, conversationID, username string) (*model.Conversation, bool, error) {
	if username == "" {
		return nil, false, errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, false, errConversationNotFound(conversationID)
	}
	if c.HasParticipant(username) {
		return c.Info(), false, nil
	}
	c.Participants = append(c.Participants, username)
	return c.Info(), true, nil
}

func (s *MemStore) RemoveParticipant(_ context.Context, conversationID, username string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	if !c.HasParticipant(username) {
		return nil, errMemberNotFound(conversationID, username)
	}
	c.Participants = model.Without(c.Participants, username)
	c.Admins = model.Without(c.Admins, username)
	return c.Info(), nil
}

func (s *MemStore) AddAdmins(_ context.Context, conversationID, requestingAdmin string, candidates []string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	if err := checkAdmins(c, requestingAdmin, candidates); err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		if !c.IsAdmin(cand) {
			c.Admins = append(c.Admins, cand)
		}
	}
	return c.Info(), nil
}

func (s *MemStore) GetInfo(_ context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	return c.Info(), nil
}

func (s *MemStore) GetMessage(_ context.Context, conversationID string, index int) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	if err := validateIndex(conversationID, index, len(c.Messages)); err != nil {
		return nil, err
	}
	return c.Messages[index].Clone(), nil
}

func (s *MemStore) GetLastMessage(_ context.Context, conversationID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	return c.LastMessage(), nil
}

func (s *MemStore) Messages(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errConversationNotFound(conversationID)
	}
	return c.Clone().Messages, nil
}

func (s *MemStore) HideMessage(_ context.Context, conversationID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return errConversationNotFound(conversationID)
	}
	if err := validateIndex(conversationID, index, len(c.Messages)); err != nil {
		return err
	}
	c.Messages[index].IsVisible = false
	return nil
}

func (s *MemStore) AddReceipt(_ context.Context, conversationID string, kind model.ReceiptKind, indexes []int, username string) error {
	if err := checkReceipt(kind, username); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return errConversationNotFound(conversationID)
	}
	for _, i := range indexes {
		if err := validateIndex(conversationID, i, len(c.Messages)); err != nil {
			return err
		}
	}
	for _, i := range indexes {
		m := &c.Messages[i]
		if kind == model.ReceiptSeen {
			if !slices.Contains(m.SeenBy, username) {
				m.SeenBy = append(m.SeenBy, username)
			}
		} else if !slices.Contains(m.DeliveredTo, username) {
			m.DeliveredTo = append(m.DeliveredTo, username)
		}
	}
	return nil
}
