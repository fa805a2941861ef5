package store

import (
	"context"

	"ChatCore/module/projection/model"
	"ChatCore/tools/errs"
)

// Store holds one row per (username, conversation id). Each write replaces
// only the fields it names. The Update* methods never create rows and return
// errs.ErrNotFound when the row is missing.
type Store interface {
	UpsertConversation(ctx context.Context, row model.UserConversation) error
	UpdateName(ctx context.Context, username, conversationID, name string) error
	UpdateParticipants(ctx context.Context, username, conversationID string, participants []string) error
	UpdateLastMessage(ctx context.Context, username, conversationID string, lm model.LastMessage) error
	ListConversations(ctx context.Context, username string) (map[string]model.UserConversation, error)
}

func errRowNotFound(username, conversationID string) error {
	return errs.ErrNotFound.WrapMsg("conversation not found for this user", "username", username, "conversationId", conversationID)
}

func checkKey(username, conversationID string) error {
	if username == "" || conversationID == "" {
		return errs.ErrInvalidArgument.WrapMsg("username and conversationId are required")
	}
	return nil
}
