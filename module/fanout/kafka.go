package fanout

import (
	"context"
	"encoding/json"

	"ChatCore/module/projection/store"
	"ChatCore/service/kafka"
	"ChatCore/tools/errs"
	"ChatCore/tools/safe"

	"go.uber.org/zap"
)

// KafkaDispatcher produces every job to a topic keyed by username, so one
// user's projection writes stay ordered on one partition. A job counts as
// issued once the broker acked it.
type KafkaDispatcher struct {
	sender kafka.Sender
	topic  string
}

func NewKafkaDispatcher(sender kafka.Sender, topic string) *KafkaDispatcher {
	safe.MustNotNil(sender, "kafka sender")
	return &KafkaDispatcher{sender: sender, topic: topic}
}

func (d *KafkaDispatcher) Dispatch(_ context.Context, conversationID string, jobs []Job) error {
	return runAll(conversationID, jobs, func(j Job) error {
		b, err := json.Marshal(j)
		if err != nil {
			return errs.WrapMsg(err, "encode projection job", "username", j.Username)
		}
		if err := d.sender.SendSync(d.topic, []byte(j.Username), b); err != nil {
			return errs.WrapMsg(err, "produce projection job", "topic", d.topic, "username", j.Username)
		}
		return nil
	})
}

// Worker applies projection jobs consumed from Kafka.
type Worker struct {
	store store.Store
	log   *zap.Logger
}

func NewWorker(s store.Store, log *zap.Logger) *Worker {
	safe.MustNotNil(s, "projection store")
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{store: s, log: log}
}

// Register binds the worker to topic on r.
func (w *Worker) Register(r *kafka.Router, topic string) {
	r.Register(topic, w.Handle)
}

// Handle is a kafka.MessageHandler. Undecodable records are dropped, store
// errors are returned so the consumer retries.
func (w *Worker) Handle(ctx context.Context, topic string, _, value []byte) error {
	var j Job
	if err := json.Unmarshal(value, &j); err != nil {
		w.log.Warn("drop undecodable projection job", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	return applyJob(ctx, w.store, w.log, j)
}
