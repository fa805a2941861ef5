package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"ChatCore/module/projection/model"
	"ChatCore/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(user, conv string) model.UserConversation {
	return model.UserConversation{
		Username:       user,
		ConversationID: conv,
		Name:           "trip",
		Participants:   []string{"alice", "bob"},
		IsGroup:        true,
		CreatedAt:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.UpsertConversation(ctx, row("alice", "c1")))
	require.NoError(t, s.UpsertConversation(ctx, row("alice", "c2")))
	require.NoError(t, s.UpsertConversation(ctx, row("bob", "c1")))

	got, err := s.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "trip", got["c1"].Name)
	assert.Equal(t, []string{"alice", "bob"}, got["c1"].Participants)

	none, err := s.ListConversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdatesTouchOnlyTheirField(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.UpsertConversation(ctx, row("alice", "c1")))

	require.NoError(t, s.UpdateName(ctx, "alice", "c1", "renamed"))
	require.NoError(t, s.UpdateParticipants(ctx, "alice", "c1", []string{"alice", "bob", "carol"}))

	got, _ := s.ListConversations(ctx, "alice")
	r := got["c1"]
	assert.Equal(t, "renamed", r.Name)
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Participants)
	assert.True(t, r.IsGroup)
	assert.Nil(t, r.LastMessage)
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	err := s.UpdateName(ctx, "alice", "c1", "x")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	err = s.UpdateParticipants(ctx, "alice", "c1", []string{"a"})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	err = s.UpdateLastMessage(ctx, "alice", "c1", model.LastMessage{Index: 0})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	// updates never create rows
	got, _ := s.ListConversations(ctx, "alice")
	assert.Empty(t, got)
}

func TestUpdateRequiresKey(t *testing.T) {
	s := NewMemStore()
	err := s.UpdateName(context.Background(), "", "c1", "x")
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	err = s.UpsertConversation(context.Background(), row("alice", ""))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestLastMessageNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.UpsertConversation(ctx, row("alice", "c1")))

	require.NoError(t, s.UpdateLastMessage(ctx, "alice", "c1", model.LastMessage{Index: 3, Sender: "bob", Content: "three"}))
	require.NoError(t, s.UpdateLastMessage(ctx, "alice", "c1", model.LastMessage{Index: 1, Sender: "bob", Content: "one"}))

	got, _ := s.ListConversations(ctx, "alice")
	require.NotNil(t, got["c1"].LastMessage)
	assert.Equal(t, "three", got["c1"].LastMessage.Content)

	require.NoError(t, s.UpdateLastMessage(ctx, "alice", "c1", model.LastMessage{Index: 4, Sender: "alice", Content: "four"}))
	got, _ = s.ListConversations(ctx, "alice")
	assert.Equal(t, "four", got["c1"].LastMessage.Content)
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.UpsertConversation(ctx, row("alice", "c1")))

	got, _ := s.ListConversations(ctx, "alice")
	r := got["c1"]
	r.Participants[0] = "mallory"

	again, _ := s.ListConversations(ctx, "alice")
	assert.Equal(t, "alice", again["c1"].Participants[0])
}

// upsertKeepsNewerPreview replays a full-row write built from an older
// snapshot over a row whose preview already advanced.
func upsertKeepsNewerPreview(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertConversation(ctx, row("dave", "c1")))
	require.NoError(t, s.UpdateLastMessage(ctx, "dave", "c1", model.LastMessage{Index: 5, Sender: "bob", Content: "five"}))

	stale := row("dave", "c1")
	stale.Name = "renamed"
	stale.LastMessage = &model.LastMessage{Index: 4, Sender: "alice", Content: "four"}
	require.NoError(t, s.UpsertConversation(ctx, stale))

	got, err := s.ListConversations(ctx, "dave")
	require.NoError(t, err)
	require.NotNil(t, got["c1"].LastMessage)
	assert.Equal(t, 5, got["c1"].LastMessage.Index)
	assert.Equal(t, "five", got["c1"].LastMessage.Content)
	assert.Equal(t, "renamed", got["c1"].Name)

	// a row without a preview does not clear the stored one
	require.NoError(t, s.UpsertConversation(ctx, row("dave", "c1")))
	got, _ = s.ListConversations(ctx, "dave")
	require.NotNil(t, got["c1"].LastMessage)
	assert.Equal(t, 5, got["c1"].LastMessage.Index)

	newer := row("dave", "c1")
	newer.LastMessage = &model.LastMessage{Index: 6, Sender: "dave", Content: "six"}
	require.NoError(t, s.UpsertConversation(ctx, newer))
	got, _ = s.ListConversations(ctx, "dave")
	require.NotNil(t, got["c1"].LastMessage)
	assert.Equal(t, "six", got["c1"].LastMessage.Content)
}

func TestUpsertKeepsNewerPreview(t *testing.T) {
	upsertKeepsNewerPreview(t, NewMemStore())
}
