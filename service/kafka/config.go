package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

type Config struct {
	Brokers           []string `json:"brokers"`
	ClientID          string   `json:"clientId"`
	Version           string   `json:"version"` // e.g. "2.1.0"
	GroupID           string   `json:"groupId"`
	Topic             string   `json:"topic"`
	Partitions        int32    `json:"partitions"`
	ReplicationFactor int16    `json:"replicationFactor"`
	ProducerRetries   int      `json:"producerRetries"`
	Compression       string   `json:"compression"`   // none/snappy/lz4/zstd
	InitialOffset     string   `json:"initialOffset"` // newest/oldest
	AutoCreateTopic   bool     `json:"autoCreateTopic"`
}

func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"127.0.0.1:9092"},
		ClientID:          "chatcore",
		Version:           "2.1.0",
		GroupID:           "chatcore-projection",
		Topic:             "chat.projection.jobs",
		Partitions:        8,
		ReplicationFactor: 1,
		ProducerRetries:   5,
		Compression:       "snappy",
		InitialOffset:     "oldest",
		AutoCreateTopic:   true,
	}
}

// BuildBaseConfig turns Config into a sarama config shared by producer and consumer group.
func BuildBaseConfig(c Config) *sarama.Config {
	cfg := sarama.NewConfig()
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}
	cfg.Version = sarama.V2_1_0_0
	if c.Version != "" {
		if v, err := sarama.ParseKafkaVersion(c.Version); err == nil {
			cfg.Version = v
		}
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = c.ProducerRetries
	// the key decides the partition, so one user's jobs stay ordered
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(c.InitialOffset) {
	case "newest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
