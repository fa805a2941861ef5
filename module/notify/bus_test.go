package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"ChatCore/service/natsx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-s.C():
		return ev, ok
	case <-time.After(100 * time.Millisecond):
		return Event{}, false
	}
}

func TestNewMessageReachesOnlyUsersToUpdate(t *testing.T) {
	b := NewBus("n1", 4, nil)
	subs := map[string]*Subscription{}
	for _, u := range []string{"a", "b", "c"} {
		s, err := b.Subscribe(NotifyNewMessage, u)
		require.NoError(t, err)
		subs[u] = s
	}

	n := b.PublishMessage(MessageAdded{ConversationID: "c1", Sender: "a", Content: "hi", UsersToUpdate: []string{"a", "b"}})
	assert.Equal(t, 2, n)

	ev, ok := recv(t, subs["a"])
	require.True(t, ok)
	assert.Equal(t, "hi", ev.Message.Content)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "n1", ev.Origin)
	_, ok = recv(t, subs["b"])
	assert.True(t, ok)
	_, ok = recv(t, subs["c"])
	assert.False(t, ok)
}

func TestPredicates(t *testing.T) {
	status := Event{Channel: ChangeUserStatus, Status: &StatusChange{Username: "a", ContactList: []string{"b"}}}
	assert.True(t, Admits("b", status))
	assert.False(t, Admits("c", status))

	conv := Event{Channel: NewConversation, Conversation: &ConversationCreated{Participants: []string{"a", "b"}}}
	assert.True(t, Admits("a", conv))
	assert.False(t, Admits("z", conv))

	req := Event{Channel: NotifyContactRequest, Request: &ContactRequest{Sender: "a", Receiver: "b"}}
	assert.True(t, Admits("b", req))
	assert.False(t, Admits("a", req))

	cancel := Event{Channel: NotifyCancelRequest, Request: &ContactRequest{Sender: "a", Receiver: "b"}}
	assert.True(t, Admits("b", cancel))

	// payload missing for its channel
	assert.False(t, Admits("a", Event{Channel: NotifyNewMessage}))
}

func TestChannelsAreIsolated(t *testing.T) {
	b := NewBus("n1", 4, nil)
	s, err := b.Subscribe(NewConversation, "a")
	require.NoError(t, err)
	b.PublishMessage(MessageAdded{UsersToUpdate: []string{"a"}})
	_, ok := recv(t, s)
	assert.False(t, ok)
}

func TestFullSubscriberDropsWithoutBlocking(t *testing.T) {
	b := NewBus("n1", 1, nil)
	s, err := b.Subscribe(NotifyContactRequest, "b")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.PublishContactRequest(ContactRequest{Sender: "a", Receiver: "b"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, uint64(4), b.Dropped())
	_, ok := recv(t, s)
	assert.True(t, ok)
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := NewBus("n1", 4, nil)
	b.PublishCancelRequest(ContactRequest{Sender: "a", Receiver: "b"})
	s, err := b.Subscribe(NotifyCancelRequest, "b")
	require.NoError(t, err)
	_, ok := recv(t, s)
	assert.False(t, ok)
}

func TestCloseUnsubscribes(t *testing.T) {
	b := NewBus("n1", 4, nil)
	s, err := b.Subscribe(ChangeUserStatus, "b")
	require.NoError(t, err)
	s.Close()
	s.Close()

	n := b.PublishStatus(StatusChange{Username: "a", Status: "online", ContactList: []string{"b"}})
	assert.Equal(t, 0, n)
	_, ok := <-s.C()
	assert.False(t, ok)
}

func TestSubscribeValidates(t *testing.T) {
	b := NewBus("n1", 4, nil)
	_, err := b.Subscribe("BOGUS", "a")
	assert.Error(t, err)
	_, err = b.Subscribe(NewConversation, "")
	assert.Error(t, err)
}

// loopTransport connects relays in one process the way NATS subjects would.
type loopTransport struct {
	mu       sync.Mutex
	routes   map[string]string
	handlers map[string][]natsx.NatsxHandler
}

func newLoop() *loopTransport {
	return &loopTransport{routes: map[string]string{}, handlers: map[string][]natsx.NatsxHandler{}}
}

// nodeTransport is one node's client on the shared loop, with its own middlewares.
type nodeTransport struct {
	*loopTransport
	mws []natsx.NatsxMiddleware
}

func (l *loopTransport) node(mws ...natsx.NatsxMiddleware) *nodeTransport {
	return &nodeTransport{loopTransport: l, mws: mws}
}

func (n *nodeTransport) Subscribe(biz string, h natsx.NatsxHandler) error {
	return n.loopTransport.subscribe(biz, natsx.NatsxChain(h, n.mws...))
}

func (l *loopTransport) RegisterRoute(r natsx.NatsxRoute) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[r.Biz] = r.Subject
	return nil
}

func (l *loopTransport) subscribe(biz string, h natsx.NatsxHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	subj := l.routes[biz]
	l.handlers[subj] = append(l.handlers[subj], h)
	return nil
}

func (l *loopTransport) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	l.mu.Lock()
	subj := l.routes[biz]
	hs := append([]natsx.NatsxHandler(nil), l.handlers[subj]...)
	l.mu.Unlock()
	for _, h := range hs {
		_ = h(ctx, natsx.NatsxMessage{Subject: subj, Data: data, Header: hdr})
	}
	return nil
}

func TestRelayDeliversAcrossNodes(t *testing.T) {
	tr := newLoop()
	b1 := NewBus("n1", 4, nil)
	b2 := NewBus("n2", 4, nil)
	require.NoError(t, NewRelay(b1, tr.node(), nil).Start())
	require.NoError(t, NewRelay(b2, tr.node(), nil).Start())

	s1, _ := b1.Subscribe(NotifyNewMessage, "b")
	s2, _ := b2.Subscribe(NotifyNewMessage, "b")

	b1.PublishMessage(MessageAdded{ConversationID: "c1", UsersToUpdate: []string{"a", "b"}})

	ev, ok := recv(t, s2)
	require.True(t, ok)
	assert.Equal(t, "n1", ev.Origin)
	assert.Equal(t, "c1", ev.Message.ConversationID)

	// exactly one copy on the origin node
	_, ok = recv(t, s1)
	assert.True(t, ok)
	_, ok = recv(t, s1)
	assert.False(t, ok)
}

func TestRelayDropsDuplicates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := newLoop()
	b1 := NewBus("n1", 4, nil)
	b2 := NewBus("n2", 4, nil)
	r1 := NewRelay(b1, tr.node(), nil)
	require.NoError(t, r1.Start())
	idem := natsx.NatsxIdemMiddleware(natsx.NewMemIdem(ctx, time.Minute), time.Minute)
	require.NoError(t, NewRelay(b2, tr.node(idem), nil).Start())
	s2, _ := b2.Subscribe(NotifyContactRequest, "b")

	ev := Event{ID: "fixed", Channel: NotifyContactRequest, Origin: "n1", Request: &ContactRequest{Sender: "a", Receiver: "b"}}
	r1.forward(ev)
	r1.forward(ev)

	_, ok := recv(t, s2)
	assert.True(t, ok)
	_, ok = recv(t, s2)
	assert.False(t, ok)
}
