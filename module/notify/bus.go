// Package notify is the in-process event bus feeding live subscriptions.
//
// Publish never blocks: each subscription has a bounded buffer and events
// that do not fit are dropped for that subscriber. Nothing is persisted, so a
// subscriber only sees events published while it is subscribed.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"ChatCore/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBuffer = 64

// Forwarder receives every locally published event, e.g. to relay it to
// other nodes.
type Forwarder func(Event)

type Bus struct {
	mu     sync.RWMutex
	subs   map[Channel]map[*Subscription]struct{}
	buffer int
	node   string
	log    *zap.Logger

	forward atomic.Pointer[Forwarder]
	dropped atomic.Uint64
}

func NewBus(node string, buffer int, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[Channel]map[*Subscription]struct{}),
		buffer: buffer,
		node:   node,
		log:    log,
	}
}

func (b *Bus) Node() string { return b.node }

func (b *Bus) SetForwarder(f Forwarder) {
	if f == nil {
		b.forward.Store(nil)
		return
	}
	b.forward.Store(&f)
}

// Dropped is the number of events discarded because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscription is one subscriber on one channel.
type Subscription struct {
	bus      *Bus
	channel  Channel
	username string
	ch       chan Event
	once     sync.Once
}

func (s *Subscription) C() <-chan Event  { return s.ch }
func (s *Subscription) Channel() Channel { return s.channel }
func (s *Subscription) Username() string { return s.username }

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.channel], s)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

func (b *Bus) Subscribe(channel Channel, username string) (*Subscription, error) {
	if !channel.Valid() {
		return nil, errs.ErrInvalidArgument.WrapMsg("unknown channel", "channel", string(channel))
	}
	if username == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	s := &Subscription{bus: b, channel: channel, username: username, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[channel] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Publish stamps ev and hands it to every admitted local subscriber and to
// the forwarder. It returns the number of local deliveries.
func (b *Bus) Publish(ev Event) int {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Origin == "" {
		ev.Origin = b.node
	}
	n := b.Deliver(ev)
	if f := b.forward.Load(); f != nil {
		(*f)(ev)
	}
	return n
}

// Deliver hands ev to local subscribers only.
func (b *Bus) Deliver(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for s := range b.subs[ev.Channel] {
		if !Admits(s.username, ev) {
			continue
		}
		select {
		case s.ch <- ev:
			n++
		default:
			b.dropped.Add(1)
			b.log.Debug("subscriber full, event dropped",
				zap.String("channel", string(ev.Channel)),
				zap.String("username", s.username),
				zap.String("eventId", ev.ID))
		}
	}
	return n
}

func (b *Bus) PublishStatus(p StatusChange) int {
	return b.Publish(Event{Channel: ChangeUserStatus, Status: &p})
}

func (b *Bus) PublishConversation(p ConversationCreated) int {
	return b.Publish(Event{Channel: NewConversation, Conversation: &p})
}

func (b *Bus) PublishMessage(p MessageAdded) int {
	return b.Publish(Event{Channel: NotifyNewMessage, Message: &p})
}

func (b *Bus) PublishContactRequest(p ContactRequest) int {
	return b.Publish(Event{Channel: NotifyContactRequest, Request: &p})
}

func (b *Bus) PublishCancelRequest(p ContactRequest) int {
	return b.Publish(Event{Channel: NotifyCancelRequest, Request: &p})
}
