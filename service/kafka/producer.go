package kafka

import (
	"github.com/Shopify/sarama"
)

// Sender is the part of a producer the application needs.
type Sender interface {
	SendSync(topic string, key, value []byte) error
}

// Producer is a synchronous producer sharing one sarama client.
type Producer struct {
	client sarama.Client
	sync   sarama.SyncProducer
}

func NewProducer(c Config) (*Producer, error) {
	client, err := sarama.NewClient(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Producer{client: client, sync: p}, nil
}

// NewProducerFrom wraps an existing sync producer, e.g. a sarama mock.
func NewProducerFrom(p sarama.SyncProducer) *Producer {
	return &Producer{sync: p}
}

// SendSync blocks until the broker acknowledged the record.
func (p *Producer) SendSync(topic string, key, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	_, _, err := p.sync.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	err := p.sync.Close()
	if p.client != nil && !p.client.Closed() {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
