// pkg/kafka/handler.go

package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"changefeed-gateway/internal/models"
)

var ErrNotSubscribed = errors.New("kafka change feed is not subscribed")

// Handler consumes a change data capture topic whose records carry the full
// current document. It reads from the end of the topic: missed events are
// not replayed.
type Handler struct {
	brokers []string
	topic   string
	logger  *logrus.Logger
	client  *kgo.Client
}

func NewHandler(brokers []string, topic string, logger *logrus.Logger) *Handler {
	return &Handler{
		brokers: brokers,
		topic:   topic,
		logger:  logger,
	}
}

func (h *Handler) Name() string { return "kafka" }

func (h *Handler) Topic() string { return h.topic }

func (h *Handler) Subscribe(ctx context.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(h.brokers...),
		kgo.ConsumeTopics(h.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.RetryTimeout(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to reach brokers: %w", err)
	}

	if err := createTopicIfNotExists(ctx, client, h.topic); err != nil {
		client.Close()
		return err
	}

	h.client = client
	return nil
}

func (h *Handler) Consume(ctx context.Context, handle func(models.ChangeEvent)) error {
	if h.client == nil {
		return ErrNotSubscribed
	}

	for {
		fetches := h.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return kgo.ErrClientClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"topic":     topic,
				"partition": partition,
			}).Warn("change feed fetch error")
		})

		fetches.EachRecord(func(record *kgo.Record) {
			handle(models.ChangeEvent(record.Value))
		})
	}
}

func (h *Handler) Close() error {
	if h.client != nil {
		h.client.Close()
	}
	return nil
}

// NewProducer creates a client for publishing change records.
func NewProducer(brokers []string) (*kgo.Client, error) {
	producer, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RetryTimeout(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return producer, nil
}

// Publish writes one change record to topic.
func Publish(ctx context.Context, producer *kgo.Client, topic string, key, data []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: data,
	}

	if err := producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	req := kmsg.NewPtrCreateTopicsRequest()
	reqTopic := kmsg.NewCreateTopicsRequestTopic()
	reqTopic.Topic = topic
	reqTopic.NumPartitions = -1
	reqTopic.ReplicationFactor = -1
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return checkCreateTopics(resp)
}

func checkCreateTopics(resp *kmsg.CreateTopicsResponse) error {
	for _, t := range resp.Topics {
		err := kerr.ErrorForCode(t.ErrorCode)
		if err == nil || errors.Is(err, kerr.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("failed to create topic %s: %w", t.Topic, err)
	}
	return nil
}
