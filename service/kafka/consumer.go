package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

const handlerAttempts = 3

type ConsumerGroupHandler struct {
	router *Router
	// backoff between handler attempts on the same record
	backoff time.Duration
}

func NewConsumerGroupHandler(r *Router) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{router: r, backoff: 200 * time.Millisecond}
}

func (h *ConsumerGroupHandler) Setup(s sarama.ConsumerGroupSession) error {
	glog.Infof("[kafka] consumer group setup member=%s", s.MemberID())
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	glog.Info("[kafka] consumer group cleanup")
	return nil
}

// ConsumeClaim hands each record to its topic handler, retrying a few times,
// then marks it. A record that keeps failing is logged and skipped.
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.handle(session.Context(), msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *ConsumerGroupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	handler, err := h.router.Get(msg.Topic)
	if err != nil {
		glog.Warningf("[kafka] %v", err)
		return
	}
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		err = handler(ctx, msg.Topic, msg.Key, msg.Value)
		if err == nil {
			return
		}
		if attempt < handlerAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.backoff * time.Duration(attempt)):
			}
		}
	}
	glog.Errorf("[kafka] drop record topic=%s partition=%d offset=%d after %d attempts: %v",
		msg.Topic, msg.Partition, msg.Offset, handlerAttempts, err)
}

// StartConsumerGroup consumes the router's topics until ctx is cancelled.
func StartConsumerGroup(ctx context.Context, c Config, r *Router) error {
	group, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID, BuildBaseConfig(c))
	if err != nil {
		return err
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			glog.Warningf("[kafka] consumer group error: %v", err)
		}
	}()

	handler := NewConsumerGroupHandler(r)
	topics := r.Topics()
	return consumeLoop(ctx, consumeBackoff, func(ctx context.Context) error {
		return group.Consume(ctx, topics, handler)
	})
}

// consumeBackoff is the pause after a failed Consume.
var consumeBackoff = time.Second

// consumeLoop re-enters consume after every rebalance until ctx is
// cancelled or the group is closed.
func consumeLoop(ctx context.Context, backoff time.Duration, consume func(context.Context) error) error {
	for {
		if err := consume(ctx); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			glog.Warningf("[kafka] consume: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
