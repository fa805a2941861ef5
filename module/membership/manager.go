// Package membership layers the admin and participant rules on top of the
// conversation store.
//
// Only a current admin may promote admins. Renaming a conversation and
// removing a member need nothing beyond a validated identity. Every user
// about to be added, promoted or named at creation is first checked against
// the user directory, concurrently, and one unknown user aborts the whole
// operation before any state changes.
package membership

import (
	"context"

	"ChatCore/module/conversation/model"
	"ChatCore/module/conversation/store"
	"ChatCore/tools/errs"
	"ChatCore/tools/safe"

	"golang.org/x/sync/errgroup"
)

// Addressability tells whether a username names an existing user.
type Addressability interface {
	ValidateAddressable(ctx context.Context, username string) (bool, error)
}

type Manager struct {
	store store.Store
	users Addressability
	// upper bound of concurrent directory lookups per operation
	limit int
}

func NewManager(s store.Store, users Addressability) *Manager {
	safe.MustNotNil(s, "conversation store")
	safe.MustNotNil(users, "addressability")
	return &Manager{store: s, users: users, limit: 16}
}

// ValidateUsers checks every name concurrently and waits for all lookups.
// The first unknown user or lookup failure is returned.
func (m *Manager) ValidateUsers(ctx context.Context, usernames []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for _, u := range model.Dedupe(usernames) {
		u := u
		g.Go(func() error {
			ok, err := m.users.ValidateAddressable(gctx, u)
			if err != nil {
				return errs.WrapMsg(err, "validate user", "username", u)
			}
			if !ok {
				return errs.ErrNotFound.WrapMsg("user not found", "username", u)
			}
			return nil
		})
	}
	return g.Wait()
}

// Create validates the invited participants, then stores the conversation
// with creator as its only admin.
func (m *Manager) Create(ctx context.Context, creator, name string, participants []string, isGroup bool) (*model.Conversation, error) {
	if err := m.ValidateUsers(ctx, model.Without(participants, creator)); err != nil {
		return nil, err
	}
	id, err := m.store.Create(ctx, name, participants, isGroup, creator)
	if err != nil {
		return nil, err
	}
	return m.store.GetInfo(ctx, id)
}

// Rename requires only an authenticated caller.
func (m *Manager) Rename(ctx context.Context, requester, conversationID, newName string) (*model.Conversation, error) {
	if requester == "" {
		return nil, errs.ErrUnauthenticated.WrapMsg("rename needs a validated user")
	}
	return m.store.Rename(ctx, conversationID, newName)
}

// AddParticipant validates username before the write. Adding an existing
// participant succeeds with added == false.
func (m *Manager) AddParticipant(ctx context.Context, requester, conversationID, username string) (*model.Conversation, bool, error) {
	if requester == "" {
		return nil, false, errs.ErrUnauthenticated.WrapMsg("add member needs a validated user")
	}
	if username == "" {
		return nil, false, errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	if err := m.ValidateUsers(ctx, []string{username}); err != nil {
		return nil, false, err
	}
	return m.store.AddParticipant(ctx, conversationID, username)
}

// RemoveParticipant requires only an authenticated caller.
func (m *Manager) RemoveParticipant(ctx context.Context, requester, conversationID, username string) (*model.Conversation, error) {
	if requester == "" {
		return nil, errs.ErrUnauthenticated.WrapMsg("remove member needs a validated user")
	}
	return m.store.RemoveParticipant(ctx, conversationID, username)
}

// AddAdmins validates every candidate, then lets the store apply the admin
// checks and the merge atomically.
func (m *Manager) AddAdmins(ctx context.Context, requester, conversationID string, candidates []string) (*model.Conversation, error) {
	if requester == "" {
		return nil, errs.ErrUnauthenticated.WrapMsg("add admin needs a validated user")
	}
	if len(model.Dedupe(candidates)) == 0 {
		return nil, errs.ErrInvalidArgument.WrapMsg("no admin candidates")
	}
	if err := m.ValidateUsers(ctx, candidates); err != nil {
		return nil, err
	}
	return m.store.AddAdmins(ctx, conversationID, requester, candidates)
}
