package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ChatCore/module/notify"
	"ChatCore/module/user/model"
	"ChatCore/service/storage"
	"ChatCore/tools/errs"
	"ChatCore/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth() (*Auth, *MemDirectory) {
	dir := NewMemDirectory()
	dir.AddUser("alice")
	dir.AddUser("bob")
	opts := security.DefaultOptions([]byte("test-secret"))
	opts.Issuer = "chatcore"
	return NewAuth(opts, dir), dir
}

func TestValidateOperation(t *testing.T) {
	ctx := context.Background()
	a, _ := testAuth()

	token, exp, err := a.IssueToken(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	u, err := a.ValidateOperation(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u)

	u, err = a.ValidateOperation(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u)

	_, err = a.ValidateOperation(ctx, "")
	assert.True(t, errors.Is(err, errs.ErrUnauthenticated))
	_, err = a.ValidateOperation(ctx, token+"x")
	assert.True(t, errors.Is(err, errs.ErrUnauthenticated))
}

func TestIssueTokenUnknownUser(t *testing.T) {
	a, _ := testAuth()
	_, _, err := a.IssueToken(context.Background(), "ghost")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestValidateAddressable(t *testing.T) {
	ctx := context.Background()
	a, _ := testAuth()
	ok, err := a.ValidateAddressable(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = a.ValidateAddressable(ctx, "ghost")
	assert.False(t, ok)
	ok, _ = a.ValidateAddressable(ctx, "")
	assert.False(t, ok)
}

func TestMemDirectoryProfile(t *testing.T) {
	ctx := context.Background()
	dir := NewMemDirectory()
	dir.Connect("alice", "bob")
	dir.Connect("alice", "carol")
	dir.Connect("alice", "bob")

	p, err := dir.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, p.ContactList)
	p, _ = dir.GetProfile(ctx, "bob")
	assert.Equal(t, []string{"alice"}, p.ContactList)

	_, err = dir.GetProfile(ctx, "ghost")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func newStatus() (*Status, *notify.Bus) {
	dir := NewMemDirectory()
	dir.Connect("alice", "bob")
	dir.Connect("alice", "carol")
	dir.AddUser("dave")
	bus := notify.NewBus("n1", 8, nil)
	return NewStatus(storage.NewMemPresence(), dir, bus, "n1", time.Minute), bus
}

func TestChangeStatusReachesContactsOnly(t *testing.T) {
	ctx := context.Background()
	s, bus := newStatus()
	bob, _ := bus.Subscribe(notify.ChangeUserStatus, "bob")
	dave, _ := bus.Subscribe(notify.ChangeUserStatus, "dave")

	require.NoError(t, s.Change(ctx, "alice", model.StatusOnline))

	select {
	case ev := <-bob.C():
		assert.Equal(t, "alice", ev.Status.Username)
		assert.Equal(t, model.StatusOnline, ev.Status.Status)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("bob got no status event")
	}
	select {
	case <-dave.C():
		t.Fatal("dave is not a contact")
	default:
	}

	assert.True(t, errors.Is(s.Change(ctx, "alice", "AWAY"), errs.ErrInvalidArgument))
}

func TestOnlineContactsAndStatuses(t *testing.T) {
	ctx := context.Background()
	s, _ := newStatus()
	require.NoError(t, s.Change(ctx, "bob", model.StatusOnline))
	require.NoError(t, s.Change(ctx, "dave", model.StatusOnline))

	online, err := s.OnlineContacts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, online)

	require.NoError(t, s.Change(ctx, "bob", model.StatusOffline))
	online, _ = s.OnlineContacts(ctx, "alice")
	assert.Empty(t, online)

	st, err := s.Statuses(ctx, []string{"bob", "dave"})
	require.NoError(t, err)
	assert.Equal(t, []model.OnlineStatus{{Username: "bob"}, {Username: "dave", OnlineStatus: true}}, st)
}

func TestContactRequestNotifications(t *testing.T) {
	s, bus := newStatus()
	sub, _ := bus.Subscribe(notify.NotifyCancelRequest, "bob")

	require.NoError(t, s.NotifyCancelRequest("alice", "bob"))
	select {
	case ev := <-sub.C():
		assert.Equal(t, "alice", ev.Request.Sender)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no cancel event")
	}
	assert.Error(t, s.NotifyContactRequest("", "bob"))
}

func TestStatusForLocation(t *testing.T) {
	assert.Equal(t, model.StatusOnline, model.StatusForLocation(model.LocationDashboard))
	assert.Equal(t, model.StatusOffline, model.StatusForLocation("SETTINGS"))
}
