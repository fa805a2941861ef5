// Package service is the chat core facade used by the gateway. Each
// operation authenticates the caller, applies the change to the conversation
// store, propagates it to the per-user projections and publishes the
// matching live event.
package service

import (
	"context"
	"errors"

	"ChatCore/module/conversation/delivery"
	"ChatCore/module/conversation/model"
	convstore "ChatCore/module/conversation/store"
	"ChatCore/module/fanout"
	"ChatCore/module/membership"
	"ChatCore/module/notify"
	projmodel "ChatCore/module/projection/model"
	projstore "ChatCore/module/projection/store"
	"ChatCore/tools/safe"

	"go.uber.org/zap"
)

// Authenticator turns a credential into a validated username.
type Authenticator interface {
	ValidateOperation(ctx context.Context, credential string) (string, error)
}

type Deps struct {
	Auth        Authenticator
	Members     *membership.Manager
	Store       convstore.Store
	Tracker     *delivery.Tracker
	Sync        *fanout.Coordinator
	Projections projstore.Store
	Bus         *notify.Bus
	Log         *zap.Logger
}

type Service struct {
	auth        Authenticator
	members     *membership.Manager
	store       convstore.Store
	tracker     *delivery.Tracker
	sync        *fanout.Coordinator
	projections projstore.Store
	bus         *notify.Bus
	log         *zap.Logger
}

func New(d Deps) *Service {
	safe.MustNotNil(d.Auth, "auth")
	safe.MustNotNil(d.Members, "membership manager")
	safe.MustNotNil(d.Store, "conversation store")
	safe.MustNotNil(d.Tracker, "delivery tracker")
	safe.MustNotNil(d.Sync, "sync coordinator")
	safe.MustNotNil(d.Projections, "projection store")
	safe.MustNotNil(d.Bus, "bus")
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		auth:        d.Auth,
		members:     d.Members,
		store:       d.Store,
		tracker:     d.Tracker,
		sync:        d.Sync,
		projections: d.Projections,
		bus:         d.Bus,
		log:         log,
	}
}

// Authenticate is exposed for the gateway's subscription endpoint.
func (s *Service) Authenticate(ctx context.Context, credential string) (string, error) {
	return s.auth.ValidateOperation(ctx, credential)
}

// reportFanout logs a partial projection failure. The conversation write
// already succeeded, so it never fails the request.
func (s *Service) reportFanout(op, conversationID string, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("op", op), zap.String("conversationId", conversationID), zap.Error(err)}
	var pf *fanout.PartialFailure
	if errors.As(err, &pf) {
		fields = append(fields, zap.Strings("failedUsers", pf.Failed))
	}
	s.log.Warn("projection fan-out incomplete", fields...)
}

func (s *Service) CreateConversation(ctx context.Context, credential, name string, participants []string, isGroup bool) (*model.Conversation, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	conv, err := s.members.Create(ctx, user, name, participants, isGroup)
	if err != nil {
		return nil, err
	}
	s.reportFanout("createConversation", conv.ID, s.sync.OnCreate(ctx, conv))
	s.bus.PublishConversation(notify.ConversationCreated{
		ConversationID: conv.ID,
		Name:           conv.Name,
		Participants:   conv.Participants,
		IsGroup:        conv.IsGroup,
		CreatedAt:      conv.CreatedAt,
	})
	return conv, nil
}

func (s *Service) AddMessage(ctx context.Context, credential, conversationID, content string) (*model.Message, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	m, err := s.store.AppendMessage(ctx, conversationID, user, content)
	if err != nil {
		return nil, err
	}
	s.reportFanout("addMessageToConversation", conversationID, s.sync.OnMessage(ctx, conversationID, m))
	s.bus.PublishMessage(notify.MessageAdded{
		ConversationID: conversationID,
		Index:          m.Index,
		Sender:         m.Sender,
		Content:        m.Content,
		SentAt:         m.SentAt,
		UsersToUpdate:  model.Dedupe(append([]string{m.Sender}, m.Receivers...)),
	})
	return m, nil
}

func (s *Service) GetDeliveredTo(ctx context.Context, credential, conversationID string, index int) ([]string, error) {
	if _, err := s.auth.ValidateOperation(ctx, credential); err != nil {
		return nil, err
	}
	return s.tracker.GetDeliveredTo(ctx, conversationID, index)
}

func (s *Service) GetSeenBy(ctx context.Context, credential, conversationID string, index int) ([]string, error) {
	if _, err := s.auth.ValidateOperation(ctx, credential); err != nil {
		return nil, err
	}
	return s.tracker.GetSeenBy(ctx, conversationID, index)
}

// MarkDelivered records a delivery receipt for the caller.
func (s *Service) MarkDelivered(ctx context.Context, credential, conversationID string, index int) error {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return err
	}
	return s.tracker.MarkDelivered(ctx, conversationID, index, user)
}

// MarkSeen records a seen receipt for the caller.
func (s *Service) MarkSeen(ctx context.Context, credential, conversationID string, index int) error {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return err
	}
	return s.tracker.MarkSeen(ctx, conversationID, index, user)
}

// NotifyDelivered runs catch-up delivery for the caller over conversationIDs.
func (s *Service) NotifyDelivered(ctx context.Context, credential string, conversationIDs []string) (map[string][]int, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	return s.tracker.CatchUpDelivery(ctx, conversationIDs, user)
}

func (s *Service) DeleteMessage(ctx context.Context, credential, conversationID string, index int) error {
	if _, err := s.auth.ValidateOperation(ctx, credential); err != nil {
		return err
	}
	return s.store.HideMessage(ctx, conversationID, index)
}

func (s *Service) GetConversationInfo(ctx context.Context, credential, conversationID string) (*model.Conversation, error) {
	if _, err := s.auth.ValidateOperation(ctx, credential); err != nil {
		return nil, err
	}
	return s.store.GetInfo(ctx, conversationID)
}

// GetLastMessage returns nil when the conversation has no messages yet.
func (s *Service) GetLastMessage(ctx context.Context, credential, conversationID string) (*model.Message, error) {
	if _, err := s.auth.ValidateOperation(ctx, credential); err != nil {
		return nil, err
	}
	return s.store.GetLastMessage(ctx, conversationID)
}

func (s *Service) RenameConversation(ctx context.Context, credential, conversationID, newName string) (*model.Conversation, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	conv, err := s.members.Rename(ctx, user, conversationID, newName)
	if err != nil {
		return nil, err
	}
	s.reportFanout("modifyConversationName", conversationID, s.sync.OnRename(ctx, conv))
	return conv, nil
}

func (s *Service) AddMember(ctx context.Context, credential, conversationID, username string) (*model.Conversation, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	conv, added, err := s.members.AddParticipant(ctx, user, conversationID, username)
	if err != nil {
		return nil, err
	}
	if !added {
		return conv, nil
	}
	last, err := s.store.GetLastMessage(ctx, conversationID)
	if err != nil {
		// the new member's row is written without a preview
		s.log.Warn("read last message for new member", zap.String("conversationId", conversationID), zap.Error(err))
		last = nil
	}
	s.reportFanout("addChatMember", conversationID, s.sync.OnAddParticipant(ctx, conv, username, last))

	// a message appended after the read above fanned out before the new
	// member's row existed, so that row was skipped
	again, err := s.store.GetLastMessage(ctx, conversationID)
	if err != nil {
		s.log.Warn("re-read last message for new member", zap.String("conversationId", conversationID), zap.Error(err))
		return conv, nil
	}
	if again != nil && (last == nil || again.Index > last.Index) {
		s.reportFanout("addChatMember", conversationID, s.sync.OnPreview(ctx, conversationID, username, again))
	}
	return conv, nil
}

func (s *Service) RemoveMember(ctx context.Context, credential, conversationID, username string) (*model.Conversation, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	conv, err := s.members.RemoveParticipant(ctx, user, conversationID, username)
	if err != nil {
		return nil, err
	}
	s.reportFanout("removeChatMember", conversationID, s.sync.OnRemoveParticipant(ctx, conv, username))
	return conv, nil
}

func (s *Service) AddAdmins(ctx context.Context, credential, conversationID string, candidates []string) (*model.Conversation, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	return s.members.AddAdmins(ctx, user, conversationID, candidates)
}

// ListConversations returns the caller's projection rows.
func (s *Service) ListConversations(ctx context.Context, credential string) (map[string]projmodel.UserConversation, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	return s.projections.ListConversations(ctx, user)
}

// Subscribe opens a live subscription for the caller.
func (s *Service) Subscribe(ctx context.Context, credential string, channel notify.Channel) (*notify.Subscription, error) {
	user, err := s.auth.ValidateOperation(ctx, credential)
	if err != nil {
		return nil, err
	}
	return s.bus.Subscribe(channel, user)
}
