package model

import (
	"slices"
	"time"
)

const ProjectionTableName = "user_conversations"

const (
	ProjectionFieldUsername       = "username"
	ProjectionFieldConversationID = "conversation_id"
	ProjectionFieldName           = "name"
	ProjectionFieldParticipants   = "participants"
	ProjectionFieldIsGroup        = "is_group"
	ProjectionFieldLastMessage    = "last_message"
	ProjectionFieldCreatedAt      = "created_at"
	ProjectionFieldUpdatedAt      = "updated_at"

	LastMessageFieldIndex = "index"
)

// LastMessage is the preview shown in a user's conversation list.
type LastMessage struct {
	Index   int       `bson:"index" json:"index"`
	Sender  string    `bson:"sender" json:"sender"`
	Content string    `bson:"content" json:"content"`
	SentAt  time.Time `bson:"sent_at" json:"sentAt"`
}

// UserConversation is one user's denormalized view of a conversation. It
// lags behind the conversation store and is repaired by later writes.
type UserConversation struct {
	Username       string       `bson:"username" json:"-"`
	ConversationID string       `bson:"conversation_id" json:"conversationId"`
	Name           string       `bson:"name" json:"name"`
	Participants   []string     `bson:"participants" json:"participants"`
	IsGroup        bool         `bson:"is_group" json:"isGroup"`
	LastMessage    *LastMessage `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	CreatedAt      time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updatedAt"`
}

func (r *UserConversation) Clone() *UserConversation {
	cp := *r
	cp.Participants = slices.Clone(r.Participants)
	if r.LastMessage != nil {
		lm := *r.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

// Newer reports whether lm may replace cur. Replays of older messages never
// move the preview backwards.
func (lm LastMessage) Newer(cur *LastMessage) bool {
	return cur == nil || lm.Index >= cur.Index
}
