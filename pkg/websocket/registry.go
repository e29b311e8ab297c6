package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"changefeed-gateway/pkg/metrics"
)

// Channel is a subscriber the Registry can deliver frames to.
type Channel interface {
	ID() string
	Open() bool
	// Send must not block.
	Send(frame []byte) error
}

// Registry owns the set of live subscribers. Removal is driven only by a
// connection's own lifecycle, never by a failed delivery.
type Registry struct {
	mu    sync.RWMutex
	conns map[Channel]struct{}

	logger      *logrus.Logger
	metrics     *metrics.Metrics
	startupTime time.Time
	sentMsgs    atomic.Uint64
	dropLog     rate.Sometimes
}

func NewRegistry(logger *logrus.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		conns:       make(map[Channel]struct{}),
		logger:      logger,
		metrics:     m,
		startupTime: time.Now(),
		dropLog:     rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Add inserts ch and reports whether it was not already present.
func (r *Registry) Add(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[ch]; ok {
		return false
	}
	r.conns[ch] = struct{}{}
	r.metrics.ConnectionOpened()
	return true
}

// Remove deletes ch and reports whether it was present. Removing an unknown
// or already removed channel is a no-op.
func (r *Registry) Remove(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[ch]; !ok {
		return false
	}
	delete(r.conns, ch)
	r.metrics.ConnectionClosed()
	return true
}

func (r *Registry) Contains(ch Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[ch]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot copies the current membership.
func (r *Registry) Snapshot() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.conns))
	for ch := range r.conns {
		out = append(out, ch)
	}
	return out
}

// Broadcast serializes message once and delivers it to every open channel
// registered at call time. Only a serialization failure is returned; per
// channel failures are skipped.
func (r *Registry) Broadcast(message interface{}) (int, error) {
	frame, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal broadcast: %w", err)
	}
	return r.BroadcastFrame(frame), nil
}

// BroadcastFrame delivers an already serialized frame and returns the number
// of channels it was queued on.
func (r *Registry) BroadcastFrame(frame []byte) int {
	targets := r.Snapshot()
	r.sentMsgs.Add(1)
	r.metrics.Broadcast(len(frame))

	delivered := 0
	for _, ch := range targets {
		if !ch.Open() {
			r.metrics.Delivery(metrics.DeliveryClosed)
			continue
		}
		if err := ch.Send(frame); err != nil {
			r.deliveryFailed(ch, err)
			continue
		}
		delivered++
		r.metrics.Delivery(metrics.DeliveryDelivered)
	}
	return delivered
}

func (r *Registry) deliveryFailed(ch Channel, err error) {
	if errors.Is(err, ErrChannelClosed) {
		r.metrics.Delivery(metrics.DeliveryClosed)
		return
	}
	r.metrics.Delivery(metrics.DeliveryDropped)
	r.dropLog.Do(func() {
		r.logger.WithError(err).WithField("conn_id", ch.ID()).Warn("dropping frame for slow consumer")
	})
}

// CloseAll closes every registered channel that supports it. Channels leave
// the registry through their own lifecycle.
func (r *Registry) CloseAll() {
	for _, ch := range r.Snapshot() {
		if closer, ok := ch.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}
