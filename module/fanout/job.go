package fanout

import (
	"context"
	"time"

	"ChatCore/module/projection/model"
	"ChatCore/module/projection/store"
	"ChatCore/tools/errs"
)

type JobKind string

const (
	JobUpsert       JobKind = "upsert"
	JobName         JobKind = "name"
	JobParticipants JobKind = "participants"
	JobLastMessage  JobKind = "last_message"
)

// Job is one projection write for one user. Jobs are safe to apply more than
// once: upserts and field writes are last-writer-wins and last-message writes
// never move backwards.
type Job struct {
	Kind           JobKind            `json:"kind"`
	Username       string             `json:"username"`
	ConversationID string             `json:"conversationId"`
	Name           string             `json:"name,omitempty"`
	Participants   []string           `json:"participants,omitempty"`
	IsGroup        bool               `json:"isGroup,omitempty"`
	CreatedAt      time.Time          `json:"createdAt,omitempty"`
	LastMessage    *model.LastMessage `json:"lastMessage,omitempty"`
}

func (j Job) Apply(ctx context.Context, s store.Store) error {
	switch j.Kind {
	case JobUpsert:
		return s.UpsertConversation(ctx, model.UserConversation{
			Username:       j.Username,
			ConversationID: j.ConversationID,
			Name:           j.Name,
			Participants:   j.Participants,
			IsGroup:        j.IsGroup,
			LastMessage:    j.LastMessage,
			CreatedAt:      j.CreatedAt,
		})
	case JobName:
		return s.UpdateName(ctx, j.Username, j.ConversationID, j.Name)
	case JobParticipants:
		return s.UpdateParticipants(ctx, j.Username, j.ConversationID, j.Participants)
	case JobLastMessage:
		if j.LastMessage == nil {
			return errs.ErrInvalidArgument.WrapMsg("last message job without message", "conversationId", j.ConversationID)
		}
		return s.UpdateLastMessage(ctx, j.Username, j.ConversationID, *j.LastMessage)
	default:
		return errs.ErrInvalidArgument.WrapMsg("unknown job kind", "kind", string(j.Kind))
	}
}
