// Package mongofeed relays a MongoDB change stream opened over the whole
// deployment.
package mongofeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"changefeed-gateway/internal/models"
)

const closeTimeout = 10 * time.Second

var ErrNotSubscribed = errors.New("mongo change feed is not subscribed")

// changeStream is satisfied by *mongo.ChangeStream.
type changeStream interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// Watcher asks the server to resolve every change to the document's current
// state, so update events carry fullDocument.
type Watcher struct {
	uri    string
	logger *logrus.Logger

	client *mongo.Client
	stream changeStream
}

func NewWatcher(uri string, logger *logrus.Logger) *Watcher {
	return &Watcher{
		uri:    uri,
		logger: logger,
	}
}

func (w *Watcher) Name() string { return "mongo" }

func (w *Watcher) Subscribe(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(w.uri))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to reach deployment: %w", err)
	}

	stream, err := client.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to open change stream: %w", err)
	}

	w.client = client
	w.stream = stream
	return nil
}

func (w *Watcher) Consume(ctx context.Context, handle func(models.ChangeEvent)) error {
	if w.stream == nil {
		return ErrNotSubscribed
	}

	for w.stream.Next(ctx) {
		evt, err := decodeEvent(w.stream)
		if err != nil {
			w.logger.WithError(err).Warn("skipping change event")
			continue
		}
		handle(evt)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return w.stream.Err()
}

func (w *Watcher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if w.stream != nil {
		errs = append(errs, w.stream.Close(ctx))
	}
	if w.client != nil {
		errs = append(errs, w.client.Disconnect(ctx))
	}
	return errors.Join(errs...)
}

// decodeEvent renders the current event as relaxed extended JSON, keeping
// the server's field order.
func decodeEvent(stream changeStream) (models.ChangeEvent, error) {
	var doc bson.D
	if err := stream.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode change event: %w", err)
	}

	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return models.ChangeEvent(data), nil
}
