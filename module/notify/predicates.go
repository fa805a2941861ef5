package notify

import "slices"

// Admits reports whether subscriber may see ev.
func Admits(subscriber string, ev Event) bool {
	switch ev.Channel {
	case ChangeUserStatus:
		return ev.Status != nil && slices.Contains(ev.Status.ContactList, subscriber)
	case NewConversation:
		return ev.Conversation != nil && slices.Contains(ev.Conversation.Participants, subscriber)
	case NotifyNewMessage:
		return ev.Message != nil && slices.Contains(ev.Message.UsersToUpdate, subscriber)
	case NotifyContactRequest, NotifyCancelRequest:
		return ev.Request != nil && ev.Request.Receiver == subscriber
	}
	return false
}
