package notify

import (
	"context"
	"encoding/json"
	"time"

	"ChatCore/service/natsx"
	"ChatCore/tools/errs"

	"go.uber.org/zap"
)

const (
	HeaderOrigin  = "Chat-Origin"
	subjectPrefix = "chat.bus."
	bizPrefix     = "bus."
)

// Transport is the part of a natsx client the relay uses.
type Transport interface {
	RegisterRoute(r natsx.NatsxRoute) error
	Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error
	Subscribe(biz string, h natsx.NatsxHandler) error
}

func subjectFor(ch Channel) string { return subjectPrefix + string(ch) }
func bizFor(ch Channel) string     { return bizPrefix + string(ch) }

// Relay mirrors bus events between nodes over core NATS. Delivery stays best
// effort: a publish that fails is logged and dropped.
type Relay struct {
	bus     *Bus
	tr      Transport
	timeout time.Duration
	log     *zap.Logger
}

func NewRelay(bus *Bus, tr Transport, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{bus: bus, tr: tr, timeout: 2 * time.Second, log: log}
}

// Start registers one route per channel, subscribes to remote events and
// installs the relay as the bus forwarder.
func (r *Relay) Start() error {
	for _, ch := range Channels {
		if err := r.tr.RegisterRoute(natsx.NatsxRoute{Biz: bizFor(ch), Subject: subjectFor(ch)}); err != nil {
			return errs.WrapMsg(err, "register relay route", "channel", string(ch))
		}
		if err := r.tr.Subscribe(bizFor(ch), r.handle); err != nil {
			return errs.WrapMsg(err, "subscribe relay", "channel", string(ch))
		}
	}
	r.bus.SetForwarder(r.forward)
	return nil
}

func (r *Relay) Stop() { r.bus.SetForwarder(nil) }

func (r *Relay) forward(ev Event) {
	if ev.Origin != r.bus.Node() {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		r.log.Warn("encode relay event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	hdr := map[string]string{natsx.HeaderMsgID: ev.ID, HeaderOrigin: ev.Origin}
	if err := r.tr.Publish(ctx, bizFor(ev.Channel), b, hdr); err != nil {
		r.log.Warn("relay publish failed", zap.String("channel", string(ev.Channel)), zap.String("eventId", ev.ID), zap.Error(err))
	}
}

func (r *Relay) handle(_ context.Context, msg natsx.NatsxMessage) error {
	if msg.Header[HeaderOrigin] == r.bus.Node() {
		return nil
	}
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return errs.WrapMsg(err, "decode relay event", "subject", msg.Subject)
	}
	if ev.Origin == r.bus.Node() || !ev.Channel.Valid() {
		return nil
	}
	r.bus.Deliver(ev)
	return nil
}
