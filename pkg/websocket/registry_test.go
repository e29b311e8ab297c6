package websocket

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changefeed-gateway/internal/models"
	"changefeed-gateway/pkg/metrics"
)

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	open   bool
	err    error
	frames [][]byte
	closed bool
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id, open: true}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeChannel) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closed = true
	return nil
}

func (f *fakeChannel) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func newTestRegistry() (*Registry, *metrics.Metrics) {
	logger, _ := test.NewNullLogger()
	m := metrics.NewMetrics("test")
	return NewRegistry(logger, m), m
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	r, m := newTestRegistry()
	ch := newFakeChannel("a")

	assert.True(t, r.Add(ch))
	assert.False(t, r.Add(ch))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r, m := newTestRegistry()
	a, b := newFakeChannel("a"), newFakeChannel("b")
	r.Add(a)
	r.Add(b)

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.False(t, r.Remove(newFakeChannel("never-added")))

	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(b))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestBroadcastReachesRegisteredChannelsOnly(t *testing.T) {
	r, _ := newTestRegistry()
	a, b, c := newFakeChannel("a"), newFakeChannel("b"), newFakeChannel("c")
	r.Add(a)
	r.Add(b)
	r.Add(c)
	r.Remove(b)

	envelope := models.NewChangeEnvelope(models.ChangeEvent(`{"id":1}`))
	delivered, err := r.Broadcast(envelope)
	require.NoError(t, err)

	assert.Equal(t, 2, delivered)
	require.Len(t, a.received(), 1)
	assert.JSONEq(t, `{"type":"db_change","data":{"id":1}}`, string(a.received()[0]))
	assert.Len(t, b.received(), 0)
	assert.Len(t, c.received(), 1)
}

func TestBroadcastSerializesOnce(t *testing.T) {
	r, _ := newTestRegistry()
	a, b := newFakeChannel("a"), newFakeChannel("b")
	r.Add(a)
	r.Add(b)

	_, err := r.Broadcast(map[string]int{"n": 1})
	require.NoError(t, err)

	assert.Same(t, &a.received()[0][0], &b.received()[0][0])
}

func TestBroadcastSkipsFailingAndClosedChannels(t *testing.T) {
	r, m := newTestRegistry()
	healthy := newFakeChannel("healthy")
	slow := newFakeChannel("slow")
	slow.err = ErrSlowConsumer
	broken := newFakeChannel("broken")
	broken.err = errors.New("boom")
	closed := newFakeChannel("closed")
	closed.open = false

	for _, ch := range []*fakeChannel{healthy, slow, broken, closed} {
		r.Add(ch)
	}

	delivered, err := r.Broadcast("hello")
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.received(), 1)
	assert.Len(t, closed.received(), 0)
	assert.Equal(t, 4, r.Len(), "delivery failures never remove channels")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(metrics.DeliveryDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(metrics.DeliveryClosed)))
}

func TestBroadcastMarshalError(t *testing.T) {
	r, _ := newTestRegistry()
	r.Add(newFakeChannel("a"))

	_, err := r.Broadcast(make(chan int))
	assert.Error(t, err)
}

func TestBroadcastEmptyRegistry(t *testing.T) {
	r, _ := newTestRegistry()
	delivered, err := r.Broadcast("nobody listening")
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r, _ := newTestRegistry()
	stable := newFakeChannel("stable")
	r.Add(stable)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ch := newFakeChannel(fmt.Sprintf("%d-%d", i, j))
				r.Add(ch)
				r.Remove(ch)
				r.Remove(ch)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.Broadcast(j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
	assert.Len(t, stable.received(), 20*50)
}

func TestRegistryCloseAll(t *testing.T) {
	r, _ := newTestRegistry()
	a, b := newFakeChannel("a"), newFakeChannel("b")
	r.Add(a)
	r.Add(b)

	r.CloseAll()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestRegistryStatus(t *testing.T) {
	r, _ := newTestRegistry()
	r.Add(newFakeChannel("a"))
	_, _ = r.Broadcast("x")

	status := r.Status()
	assert.Equal(t, "OK", status.Status)
	assert.Equal(t, uint64(1), status.SentMsgs)
	require.Len(t, status.Connections, 1)
	assert.Equal(t, "a", status.Connections[0].ID)
}
