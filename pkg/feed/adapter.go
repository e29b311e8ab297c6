// Package feed bridges an upstream change stream to the broadcaster.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"changefeed-gateway/internal/models"
	"changefeed-gateway/pkg/metrics"
)

// Source is an upstream change stream that resolves each change to the full
// current document.
type Source interface {
	Name() string
	// Subscribe establishes the subscription.
	Subscribe(ctx context.Context) error
	// Consume hands every event to handle until ctx is done or the stream
	// fails.
	Consume(ctx context.Context, handle func(models.ChangeEvent)) error
	Close() error
}

type Broadcaster interface {
	Broadcast(message interface{}) (int, error)
}

// SubscriptionError means the process cannot run: it has no feed to relay.
type SubscriptionError struct {
	Source string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to subscribe to %s change feed: %v", e.Source, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

type Adapter struct {
	source      Source
	broadcaster Broadcaster
	logger      *logrus.Logger
	metrics     *metrics.Metrics
}

func NewAdapter(source Source, broadcaster Broadcaster, logger *logrus.Logger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		source:      source,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     m,
	}
}

// Start subscribes once for the life of the process.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.source.Subscribe(ctx); err != nil {
		return &SubscriptionError{Source: a.source.Name(), Err: err}
	}
	a.logger.WithField("source", a.source.Name()).Info("subscribed to change feed")
	return nil
}

// Run relays events until ctx is cancelled. Any other return means the feed
// is gone.
func (a *Adapter) Run(ctx context.Context) error {
	defer func() {
		if err := a.source.Close(); err != nil {
			a.logger.WithError(err).WithField("source", a.source.Name()).Warn("failed to close change feed")
		}
	}()

	err := a.source.Consume(ctx, a.Handle)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("stream ended")
	}
	return fmt.Errorf("%s change feed stopped: %w", a.source.Name(), err)
}

// Handle wraps one change event and broadcasts it.
func (a *Adapter) Handle(event models.ChangeEvent) {
	a.metrics.FeedEvent()

	if !json.Valid(event) {
		a.metrics.FeedError()
		a.logger.WithField("source", a.source.Name()).Warn("skipping change event that is not valid JSON")
		return
	}

	delivered, err := a.broadcaster.Broadcast(models.NewChangeEnvelope(event))
	if err != nil {
		a.metrics.FeedError()
		a.logger.WithError(err).Error("failed to broadcast change event")
		return
	}
	a.logger.WithField("recipients", delivered).Debug("change event broadcast")
}
