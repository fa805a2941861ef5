package kafka

import (
	"errors"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// EnsureTopics creates missing topics and grows partitions up to c.Partitions.
// Kafka never shrinks partitions.
func EnsureTopics(c Config, topics ...string) error {
	admin, err := sarama.NewClusterAdmin(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	defer admin.Close()
	return ensureTopicsWith(admin, c, topics)
}

func ensureTopicsWith(admin sarama.ClusterAdmin, c Config, topics []string) error {
	minISR := "1"
	if c.ReplicationFactor >= 3 {
		minISR = "2"
	}
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     c.Partitions,
				ReplicationFactor: c.ReplicationFactor,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					glog.Infof("[kafka] topic exists (race): %s", t)
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			glog.Infof("[kafka] topic created: %s (partitions=%d, rf=%d)", t, c.Partitions, c.ReplicationFactor)
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if c.Partitions > cur {
			if err := admin.CreatePartitions(t, c.Partitions, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, cur, c.Partitions, err)
			}
			glog.Infof("[kafka] partitions expanded: %s (%d -> %d)", t, cur, c.Partitions)
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
