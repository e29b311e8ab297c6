package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/internal/models"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

var ErrNotSubscribed = errors.New("postgres change feed is not subscribed")

type lookupFunc func(ctx context.Context, table, key string) (json.RawMessage, error)

// Listener receives change notifications over LISTEN/NOTIFY and resolves
// each one to the row's full current state.
type Listener struct {
	dsn     string
	channel string
	logger  *logrus.Logger

	db       *sql.DB
	listener *pq.Listener
	lookup   lookupFunc
}

func NewListener(dsn, channel string, logger *logrus.Logger) *Listener {
	l := &Listener{
		dsn:     dsn,
		channel: channel,
		logger:  logger,
	}
	l.lookup = l.fetchRow
	return l
}

func (l *Listener) Name() string { return "postgres" }

func (l *Listener) Subscribe(ctx context.Context) error {
	db, err := sql.Open("postgres", l.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to reach database: %w", err)
	}

	listener := pq.NewListener(l.dsn, minReconnectInterval, maxReconnectInterval, l.reportEvent)
	if err := listener.Listen(l.channel); err != nil {
		_ = listener.Close()
		_ = db.Close()
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}

	l.db = db
	l.listener = listener
	return nil
}

func (l *Listener) Consume(ctx context.Context, handle func(models.ChangeEvent)) error {
	if l.listener == nil {
		return ErrNotSubscribed
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-l.listener.Notify:
			if !ok {
				return errors.New("notification channel closed")
			}
			if n == nil {
				// nil follows a reconnect
				l.logger.WithField("channel", l.channel).Warn("change feed reconnected, notifications may have been missed")
				continue
			}
			evt, err := l.resolve(ctx, n.Extra)
			if err != nil {
				l.logger.WithError(err).WithField("channel", l.channel).Warn("skipping change notification")
				continue
			}
			handle(evt)
		case <-ticker.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.WithError(err).Warn("change feed ping failed")
				}
			}()
		}
	}
}

func (l *Listener) Close() error {
	var errs []error
	if l.listener != nil {
		errs = append(errs, l.listener.Close())
	}
	if l.db != nil {
		errs = append(errs, l.db.Close())
	}
	return errors.Join(errs...)
}

func (l *Listener) resolve(ctx context.Context, payload string) (models.ChangeEvent, error) {
	n, err := parseNotification(payload)
	if err != nil {
		return nil, err
	}

	doc := n.Data
	if n.needsLookup() {
		doc, err = l.lookup(ctx, n.Table, n.keyText())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s row: %w", n.Table, err)
		}
	}
	return buildEvent(n, doc)
}

// fetchRow returns the row as JSON, or nil when it no longer exists.
func (l *Listener) fetchRow(ctx context.Context, table, key string) (json.RawMessage, error) {
	query := fmt.Sprintf("SELECT row_to_json(t)::text FROM %s t WHERE t.id = $1", quoteTable(table))

	var row string
	err := l.db.QueryRowContext(ctx, query, key).Scan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row), nil
}

func (l *Listener) reportEvent(ev pq.ListenerEventType, err error) {
	entry := l.logger.WithField("channel", l.channel)
	if err != nil {
		entry = entry.WithError(err)
	}
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		entry.Warn("change feed connection attempt failed")
	case pq.ListenerEventDisconnected:
		entry.Warn("change feed disconnected")
	case pq.ListenerEventReconnected:
		entry.Info("change feed reconnected")
	}
}

// quoteTable quotes each part of a possibly schema-qualified table name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
