package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	convmodel "ChatCore/module/conversation/model"
	"ChatCore/module/projection/model"
	"ChatCore/module/projection/store"
	"ChatCore/service/kafka"
	"ChatCore/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every write for the listed users.
type failingStore struct {
	store.Store
	fail map[string]bool
}

func (s *failingStore) check(u string) error {
	if s.fail[u] {
		return errs.ErrInternal.WrapMsg("boom", "username", u)
	}
	return nil
}

func (s *failingStore) UpsertConversation(ctx context.Context, r model.UserConversation) error {
	if err := s.check(r.Username); err != nil {
		return err
	}
	return s.Store.UpsertConversation(ctx, r)
}

func (s *failingStore) UpdateName(ctx context.Context, u, id, name string) error {
	if err := s.check(u); err != nil {
		return err
	}
	return s.Store.UpdateName(ctx, u, id, name)
}

func (s *failingStore) UpdateLastMessage(ctx context.Context, u, id string, lm model.LastMessage) error {
	if err := s.check(u); err != nil {
		return err
	}
	return s.Store.UpdateLastMessage(ctx, u, id, lm)
}

func testConversation() *convmodel.Conversation {
	return &convmodel.Conversation{
		ID:           "c1",
		Name:         "trip",
		Participants: []string{"alice", "bob", "carol"},
		Admins:       []string{"alice"},
		IsGroup:      true,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newDirect(s store.Store) *Coordinator {
	return NewCoordinator(NewDirectDispatcher(s, nil))
}

func TestCreateUpsertsEveryParticipant(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, newDirect(s).OnCreate(ctx, testConversation()))

	for _, u := range []string{"alice", "bob", "carol"} {
		rows, err := s.ListConversations(ctx, u)
		require.NoError(t, err)
		require.Contains(t, rows, "c1", u)
		assert.Equal(t, "trip", rows["c1"].Name)
		assert.True(t, rows["c1"].IsGroup)
		assert.Nil(t, rows["c1"].LastMessage)
	}
}

func TestRenameAndMessageUpdateRows(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	co := newDirect(s)
	conv := testConversation()
	require.NoError(t, co.OnCreate(ctx, conv))

	conv.Name = "holiday"
	require.NoError(t, co.OnRename(ctx, conv))

	m := &convmodel.Message{Index: 0, Sender: "bob", Content: "hi", Receivers: []string{"alice", "carol"}}
	require.NoError(t, co.OnMessage(ctx, conv.ID, m))

	for _, u := range conv.Participants {
		rows, _ := s.ListConversations(ctx, u)
		assert.Equal(t, "holiday", rows["c1"].Name)
		require.NotNil(t, rows["c1"].LastMessage, u)
		assert.Equal(t, "hi", rows["c1"].LastMessage.Content)
		assert.Equal(t, "bob", rows["c1"].LastMessage.Sender)
	}
}

func TestAddParticipantWritesFullRowForNewMember(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	co := newDirect(s)
	conv := testConversation()
	require.NoError(t, co.OnCreate(ctx, conv))

	conv.Participants = append(conv.Participants, "dave")
	last := &convmodel.Message{Index: 4, Sender: "alice", Content: "latest"}
	require.NoError(t, co.OnAddParticipant(ctx, conv, "dave", last))

	rows, _ := s.ListConversations(ctx, "dave")
	require.Contains(t, rows, "c1")
	assert.Equal(t, "trip", rows["c1"].Name)
	assert.Equal(t, conv.Participants, rows["c1"].Participants)
	require.NotNil(t, rows["c1"].LastMessage)
	assert.Equal(t, 4, rows["c1"].LastMessage.Index)

	rows, _ = s.ListConversations(ctx, "alice")
	assert.Equal(t, conv.Participants, rows["c1"].Participants)
}

func TestReturningMemberKeepsNewerPreview(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	co := newDirect(s)
	conv := testConversation()
	conv.Participants = append(conv.Participants, "dave")
	require.NoError(t, co.OnCreate(ctx, conv))

	// the message fans out before the add that read index 4 does
	msg := &convmodel.Message{Index: 5, Sender: "bob", Receivers: []string{"alice", "carol", "dave"}, Content: "five"}
	require.NoError(t, co.OnMessage(ctx, "c1", msg))
	last := &convmodel.Message{Index: 4, Sender: "alice", Content: "four"}
	require.NoError(t, co.OnAddParticipant(ctx, conv, "dave", last))

	rows, _ := s.ListConversations(ctx, "dave")
	require.NotNil(t, rows["c1"].LastMessage)
	assert.Equal(t, 5, rows["c1"].LastMessage.Index)
	assert.Equal(t, "five", rows["c1"].LastMessage.Content)
}

func TestOnPreviewRepairsOneUser(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	co := newDirect(s)
	conv := testConversation()
	require.NoError(t, co.OnCreate(ctx, conv))

	require.NoError(t, co.OnPreview(ctx, "c1", "carol", &convmodel.Message{Index: 2, Sender: "bob", Content: "two"}))
	require.NoError(t, co.OnPreview(ctx, "c1", "carol", nil))

	rows, _ := s.ListConversations(ctx, "carol")
	require.NotNil(t, rows["c1"].LastMessage)
	assert.Equal(t, "two", rows["c1"].LastMessage.Content)
	rows, _ = s.ListConversations(ctx, "alice")
	assert.Nil(t, rows["c1"].LastMessage)
}

func TestRemoveParticipantUpdatesRemovedUser(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	co := newDirect(s)
	conv := testConversation()
	require.NoError(t, co.OnCreate(ctx, conv))

	conv.Participants = []string{"alice", "bob"}
	require.NoError(t, co.OnRemoveParticipant(ctx, conv, "carol"))

	for _, u := range []string{"alice", "bob", "carol"} {
		rows, _ := s.ListConversations(ctx, u)
		assert.Equal(t, []string{"alice", "bob"}, rows["c1"].Participants, u)
	}
}

func TestMissingRowsAreNotFailures(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	// no rows exist at all
	err := newDirect(s).OnRename(ctx, testConversation())
	assert.NoError(t, err)
}

func TestPartialFailureListsFailedUsers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	s := &failingStore{Store: mem, fail: map[string]bool{"bob": true}}

	err := newDirect(s).OnCreate(ctx, testConversation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrPartialFanout))
	assert.Equal(t, errs.PartialFanout, errs.Code(err))

	var pf *PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, []string{"bob"}, pf.Failed)
	assert.Equal(t, "c1", pf.ConversationID)

	// the other users were still written
	rows, _ := mem.ListConversations(ctx, "alice")
	assert.Contains(t, rows, "c1")
	rows, _ = mem.ListConversations(ctx, "carol")
	assert.Contains(t, rows, "c1")
}

type panickingStore struct {
	store.Store
	user string
}

func (s *panickingStore) UpsertConversation(ctx context.Context, r model.UserConversation) error {
	if r.Username == s.user {
		panic("row encoder blew up")
	}
	return s.Store.UpsertConversation(ctx, r)
}

func TestPanickingWriteIsReportedAsFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	err := newDirect(&panickingStore{Store: mem, user: "carol"}).OnCreate(ctx, testConversation())
	require.Error(t, err)

	var pf *PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, []string{"carol"}, pf.Failed)
	assert.True(t, errors.Is(pf.Err, errs.ErrInternal))
	assert.Contains(t, pf.Err.Error(), "row encoder blew up")

	rows, _ := mem.ListConversations(ctx, "bob")
	assert.Contains(t, rows, "c1")
}

func TestCancelledContextStillWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := store.NewMemStore()
	require.NoError(t, newDirect(s).OnCreate(ctx, testConversation()))
	rows, _ := s.ListConversations(context.Background(), "bob")
	assert.Contains(t, rows, "c1")
}

type sentRecord struct {
	topic string
	key   string
	job   Job
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentRecord
	err  error
}

func (f *fakeSender) SendSync(topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	var j Job
	if err := json.Unmarshal(value, &j); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentRecord{topic: topic, key: string(key), job: j})
	return nil
}

func TestKafkaDispatcherKeysByUser(t *testing.T) {
	ctx := context.Background()
	f := &fakeSender{}
	co := NewCoordinator(NewKafkaDispatcher(f, "chat.projection.jobs"))

	require.NoError(t, co.OnCreate(ctx, testConversation()))
	require.Len(t, f.sent, 3)
	for _, r := range f.sent {
		assert.Equal(t, "chat.projection.jobs", r.topic)
		assert.Equal(t, r.job.Username, r.key)
		assert.Equal(t, JobUpsert, r.job.Kind)
		assert.Equal(t, "c1", r.job.ConversationID)
	}
}

func TestKafkaDispatcherProduceFailure(t *testing.T) {
	f := &fakeSender{err: errors.New("out of brokers")}
	err := NewCoordinator(NewKafkaDispatcher(f, "jobs")).OnCreate(context.Background(), testConversation())

	var pf *PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, []string{"alice", "bob", "carol"}, pf.Failed)
}

func TestWorkerAppliesJobs(t *testing.T) {
	ctx := context.Background()
	f := &fakeSender{}
	conv := testConversation()
	require.NoError(t, NewCoordinator(NewKafkaDispatcher(f, "jobs")).OnCreate(ctx, conv))

	s := store.NewMemStore()
	w := NewWorker(s, nil)
	r := kafka.NewRouter()
	w.Register(r, "jobs")
	h, err := r.Get("jobs")
	require.NoError(t, err)

	for _, rec := range f.sent {
		b, _ := json.Marshal(rec.job)
		require.NoError(t, h(ctx, "jobs", []byte(rec.key), b))
	}
	rows, _ := s.ListConversations(ctx, "carol")
	assert.Equal(t, "trip", rows["c1"].Name)

	// replayed older previews do not win
	newer, _ := json.Marshal(Job{Kind: JobLastMessage, Username: "carol", ConversationID: "c1", LastMessage: &model.LastMessage{Index: 2, Content: "new"}})
	older, _ := json.Marshal(Job{Kind: JobLastMessage, Username: "carol", ConversationID: "c1", LastMessage: &model.LastMessage{Index: 1, Content: "old"}})
	require.NoError(t, w.Handle(ctx, "jobs", nil, newer))
	require.NoError(t, w.Handle(ctx, "jobs", nil, older))
	rows, _ = s.ListConversations(ctx, "carol")
	assert.Equal(t, "new", rows["c1"].LastMessage.Content)

	// garbage and missing rows are not retried
	assert.NoError(t, w.Handle(ctx, "jobs", nil, []byte("not json")))
	missing, _ := json.Marshal(Job{Kind: JobName, Username: "zed", ConversationID: "c1", Name: "x"})
	assert.NoError(t, w.Handle(ctx, "jobs", nil, missing))
}

func TestJobApplyRejectsUnknownKind(t *testing.T) {
	err := Job{Kind: "bogus", Username: "a", ConversationID: "c"}.Apply(context.Background(), store.NewMemStore())
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
