package model

import (
	"slices"
	"time"
)

const ConversationTableName = "conversations"

// bson field names of the conversations collection
const (
	ConversationFieldID           = "_id"
	ConversationFieldName         = "name"
	ConversationFieldParticipants = "participants"
	ConversationFieldAdmins       = "admins"
	ConversationFieldIsGroup      = "is_group"
	ConversationFieldCreatedAt    = "created_at"
	ConversationFieldMessages     = "messages"

	MessageFieldIndex       = "index"
	MessageFieldSender      = "sender"
	MessageFieldContent     = "content"
	MessageFieldReceivers   = "receivers"
	MessageFieldDeliveredTo = "delivered_to"
	MessageFieldSeenBy      = "seen_by"
	MessageFieldIsVisible   = "is_visible"
	MessageFieldSentAt      = "sent_at"
)

// Conversation is the authoritative aggregate. Admins is always a subset of
// Participants and Messages only grows.
type Conversation struct {
	ID           string    `bson:"_id" json:"conversationId"`
	Name         string    `bson:"name" json:"name"`
	Participants []string  `bson:"participants" json:"participants"`
	Admins       []string  `bson:"admins" json:"admins"`
	IsGroup      bool      `bson:"is_group" json:"isGroup"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	Messages     []Message `bson:"messages" json:"messages,omitempty"`
}

// Message is addressed by (conversation id, Index). Index is its append position.
type Message struct {
	Index       int       `bson:"index" json:"index"`
	Sender      string    `bson:"sender" json:"sender"`
	Content     string    `bson:"content" json:"content"`
	Receivers   []string  `bson:"receivers" json:"receivers"`
	DeliveredTo []string  `bson:"delivered_to" json:"deliveredTo"`
	SeenBy      []string  `bson:"seen_by" json:"seenBy"`
	IsVisible   bool      `bson:"is_visible" json:"isVisible"`
	SentAt      time.Time `bson:"sent_at" json:"sentAt"`
}

func (c *Conversation) HasParticipant(u string) bool { return slices.Contains(c.Participants, u) }
func (c *Conversation) IsAdmin(u string) bool        { return slices.Contains(c.Admins, u) }

// Info returns a deep copy without the message log.
func (c *Conversation) Info() *Conversation {
	return &Conversation{
		ID:           c.ID,
		Name:         c.Name,
		Participants: slices.Clone(c.Participants),
		Admins:       slices.Clone(c.Admins),
		IsGroup:      c.IsGroup,
		CreatedAt:    c.CreatedAt,
	}
}

// Clone returns a deep copy including messages.
func (c *Conversation) Clone() *Conversation {
	out := c.Info()
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i := range c.Messages {
			out.Messages[i] = *c.Messages[i].Clone()
		}
	}
	return out
}

// LastMessage returns the newest message or nil.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1].Clone()
}

func (m *Message) Clone() *Message {
	cp := *m
	cp.Receivers = slices.Clone(m.Receivers)
	cp.DeliveredTo = slices.Clone(m.DeliveredTo)
	cp.SeenBy = slices.Clone(m.SeenBy)
	return &cp
}

func (m *Message) IsReceiver(u string) bool { return slices.Contains(m.Receivers, u) }

// Dedupe removes empty and repeated names, keeping first occurrences in order.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Without returns names minus u, preserving order.
func Without(names []string, u string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != u {
			out = append(out, n)
		}
	}
	return out
}
