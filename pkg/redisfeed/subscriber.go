// Package redisfeed reads change events published on a Redis channel.
package redisfeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/internal/models"
)

var ErrNotSubscribed = errors.New("redis change feed is not subscribed")

// Subscriber relays messages from one pub/sub channel. Publishers are
// expected to send the full current document in each message.
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger
	pubsub  *redis.PubSub
}

func NewSubscriber(client *redis.Client, channel string, logger *logrus.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (s *Subscriber) Name() string { return "redis" }

func (s *Subscriber) Subscribe(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	// Receive waits for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	s.logger.WithField("channel", s.channel).Debug("redis pubsub connected")
	s.pubsub = pubsub
	return nil
}

func (s *Subscriber) Consume(ctx context.Context, handle func(models.ChangeEvent)) error {
	if s.pubsub == nil {
		return ErrNotSubscribed
	}

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis pubsub closed")
			}
			handle(models.ChangeEvent(msg.Payload))
		}
	}
}

func (s *Subscriber) Close() error {
	var errs []error
	if s.pubsub != nil {
		errs = append(errs, s.pubsub.Close())
	}
	errs = append(errs, s.client.Close())
	return errors.Join(errs...)
}
