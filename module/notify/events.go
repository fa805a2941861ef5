package notify

import "time"

type Channel string

const (
	ChangeUserStatus     Channel = "CHANGE_USER_STATUS"
	NewConversation      Channel = "NEW_CONVERSATION"
	NotifyNewMessage     Channel = "NOTIFY_NEW_MESSAGE"
	NotifyContactRequest Channel = "NOTIFY_CONTACT_REQUEST"
	NotifyCancelRequest  Channel = "NOTIFY_CANCEL_REQUEST"
)

var Channels = []Channel{ChangeUserStatus, NewConversation, NotifyNewMessage, NotifyContactRequest, NotifyCancelRequest}

func (c Channel) Valid() bool {
	switch c {
	case ChangeUserStatus, NewConversation, NotifyNewMessage, NotifyContactRequest, NotifyCancelRequest:
		return true
	}
	return false
}

type StatusChange struct {
	Username    string   `json:"username"`
	Status      string   `json:"status"`
	ContactList []string `json:"contactList"`
}

type ConversationCreated struct {
	ConversationID string    `json:"conversationId"`
	Name           string    `json:"name"`
	Participants   []string  `json:"participants"`
	IsGroup        bool      `json:"isGroup"`
	CreatedAt      time.Time `json:"createdAt"`
}

type MessageAdded struct {
	ConversationID string    `json:"conversationId"`
	Index          int       `json:"index"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	UsersToUpdate  []string  `json:"usersToUpdate"`
}

// ContactRequest is used by both the request and the cancel channel.
type ContactRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// Event carries exactly one payload, matching Channel.
type Event struct {
	ID      string    `json:"id"`
	Channel Channel   `json:"channel"`
	Origin  string    `json:"origin,omitempty"`
	At      time.Time `json:"at"`

	Status       *StatusChange        `json:"status,omitempty"`
	Conversation *ConversationCreated `json:"conversation,omitempty"`
	Message      *MessageAdded        `json:"message,omitempty"`
	Request      *ContactRequest      `json:"request,omitempty"`
}
