package service

import (
	"context"
	"time"

	"ChatCore/module/notify"
	"ChatCore/module/user/model"
	"ChatCore/service/storage"
	"ChatCore/tools/errs"
)

// Status keeps presence and announces status changes to contacts.
type Status struct {
	presence storage.Presence
	dir      Directory
	bus      *notify.Bus
	node     string
	ttl      time.Duration
}

func NewStatus(p storage.Presence, dir Directory, bus *notify.Bus, node string, ttl time.Duration) *Status {
	return &Status{presence: p, dir: dir, bus: bus, node: node, ttl: ttl}
}

// Change records status for username and publishes it to the user's contacts.
func (s *Status) Change(ctx context.Context, username, status string) error {
	switch status {
	case model.StatusOnline:
		if err := s.presence.SetOnline(ctx, username, s.node, s.ttl); err != nil {
			return errs.WrapMsg(err, "set online", "username", username)
		}
	case model.StatusOffline:
		if err := s.presence.SetOffline(ctx, username); err != nil {
			return errs.WrapMsg(err, "set offline", "username", username)
		}
	default:
		return errs.ErrInvalidArgument.WrapMsg("unknown status", "status", status)
	}
	p, err := s.dir.GetProfile(ctx, username)
	if err != nil {
		return err
	}
	s.bus.PublishStatus(notify.StatusChange{Username: username, Status: status, ContactList: p.ContactList})
	return nil
}

// OnlineContacts lists the contacts of username that are online now.
func (s *Status) OnlineContacts(ctx context.Context, username string) ([]string, error) {
	p, err := s.dir.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	online, err := s.presence.OnlineAmong(ctx, p.ContactList)
	if err != nil {
		return nil, errs.WrapMsg(err, "presence lookup", "username", username)
	}
	return online, nil
}

func (s *Status) Statuses(ctx context.Context, usernames []string) ([]model.OnlineStatus, error) {
	online, err := s.presence.OnlineAmong(ctx, usernames)
	if err != nil {
		return nil, errs.WrapMsg(err, "presence lookup")
	}
	set := make(map[string]struct{}, len(online))
	for _, u := range online {
		set[u] = struct{}{}
	}
	out := make([]model.OnlineStatus, 0, len(usernames))
	for _, u := range usernames {
		_, ok := set[u]
		out = append(out, model.OnlineStatus{Username: u, OnlineStatus: ok})
	}
	return out, nil
}

// NotifyContactRequest only publishes. The request itself is stored by the
// user service.
func (s *Status) NotifyContactRequest(sender, receiver string) error {
	if sender == "" || receiver == "" {
		return errs.ErrInvalidArgument.WrapMsg("sender and receiver are required")
	}
	s.bus.PublishContactRequest(notify.ContactRequest{Sender: sender, Receiver: receiver})
	return nil
}

func (s *Status) NotifyCancelRequest(sender, receiver string) error {
	if sender == "" || receiver == "" {
		return errs.ErrInvalidArgument.WrapMsg("sender and receiver are required")
	}
	s.bus.PublishCancelRequest(notify.ContactRequest{Sender: sender, Receiver: receiver})
	return nil
}
