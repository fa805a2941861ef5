package store

import (
	"context"
	"time"

	"ChatCore/module/conversation/model"
	"ChatCore/tools/errs"
)

// Store is the authoritative conversation log. Every method is atomic with
// respect to a single conversation.
type Store interface {
	// Create stores a new conversation. The creator is added to participants
	// and becomes the only admin.
	Create(ctx context.Context, name string, participants []string, isGroup bool, creator string) (string, error)
	// AppendMessage assigns the next index and snapshots receivers from the
	// participants at call time.
	AppendMessage(ctx context.Context, conversationID, sender, content string) (*model.Message, error)
	Rename(ctx context.Context, conversationID, newName string) (*model.Conversation, error)
	// AddParticipant is idempotent. added is false when username was already a participant.
	AddParticipant(ctx context.Context, conversationID, username string) (info *model.Conversation, added bool, err error)
	// RemoveParticipant also drops username from admins.
	RemoveParticipant(ctx context.Context, conversationID, username string) (*model.Conversation, error)
	AddAdmins(ctx context.Context, conversationID, requestingAdmin string, candidates []string) (*model.Conversation, error)

	GetInfo(ctx context.Context, conversationID string) (*model.Conversation, error)
	GetMessage(ctx context.Context, conversationID string, index int) (*model.Message, error)
	// GetLastMessage returns nil without error when the conversation has no messages.
	GetLastMessage(ctx context.Context, conversationID string) (*model.Message, error)
	// Messages returns the whole log, oldest first.
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	HideMessage(ctx context.Context, conversationID string, index int) error
	// AddReceipt adds username to the receipt set of every listed message. Set semantics.
	AddReceipt(ctx context.Context, conversationID string, kind model.ReceiptKind, indexes []int, username string) error
}

// newConversation validates creation input and builds the aggregate.
func newConversation(id, name string, participants []string, isGroup bool, creator string, now time.Time) (*model.Conversation, error) {
	if creator == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("creator is required")
	}
	members := model.Dedupe(append(append([]string{}, participants...), creator))
	if len(members) < 2 {
		return nil, errs.ErrInvalidArgument.WrapMsg("a conversation needs at least 2 participants", "participants", len(members))
	}
	return &model.Conversation{
		ID:           id,
		Name:         name,
		Participants: members,
		Admins:       []string{creator},
		IsGroup:      isGroup,
		CreatedAt:    now,
		Messages:     []model.Message{},
	}, nil
}

func validateIndex(conversationID string, index, count int) error {
	if index < 0 || index >= count {
		return errs.ErrNotFound.WrapMsg("message not found", "conversationId", conversationID, "index", index)
	}
	return nil
}

func errConversationNotFound(conversationID string) error {
	return errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
}

func errMemberNotFound(conversationID, username string) error {
	return errs.ErrNotFound.WrapMsg("member not in conversation", "conversationId", conversationID, "username", username)
}

// checkAdmins applies the admin-granting rules against the current state.
func checkAdmins(c *model.Conversation, requester string, candidates []string) error {
	if !c.IsAdmin(requester) {
		return errs.ErrPermissionDenied.WrapMsg("only admins can add admins", "conversationId", c.ID, "requester", requester)
	}
	for _, cand := range candidates {
		if !c.HasParticipant(cand) {
			return errs.ErrInvalidArgument.WrapMsg("admin candidate is not a participant", "conversationId", c.ID, "candidate", cand)
		}
	}
	return nil
}

func checkSender(c *model.Conversation, sender, content string) error {
	if content == "" {
		return errs.ErrInvalidArgument.WrapMsg("message content is required")
	}
	if !c.HasParticipant(sender) {
		return errs.ErrPermissionDenied.WrapMsg("sender is not a participant", "conversationId", c.ID, "sender", sender)
	}
	return nil
}

func checkReceipt(kind model.ReceiptKind, username string) error {
	if kind != model.ReceiptDelivered && kind != model.ReceiptSeen {
		return errs.ErrInvalidArgument.WrapMsg("unknown receipt kind", "kind", int(kind))
	}
	if username == "" {
		return errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	return nil
}
