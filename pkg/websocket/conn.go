package websocket

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
	InboundRate  float64
	InboundBurst int
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadLimit:    64 * 1024,
		InboundRate:  10,
		InboundBurst: 20,
	}
}

// Conn is an admitted subscriber. Frames are queued by Send and written by a
// dedicated writer goroutine; Done is closed exactly once when the connection
// terminates, after which Err reports why (nil for a clean close).
type Conn struct {
	id          string
	address     string
	connectedAt time.Time

	ws      *websocket.Conn
	cfg     Config
	send    chan []byte
	inbound *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
	err       error

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newConn(ws *websocket.Conn, address string, cfg Config) *Conn {
	limit := rate.Inf
	if cfg.InboundRate > 0 {
		limit = rate.Limit(cfg.InboundRate)
	}
	burst := cfg.InboundBurst
	if burst <= 0 {
		burst = 1
	}
	bufferSize := cfg.SendBuffer
	if bufferSize <= 0 {
		bufferSize = 1
	}

	return &Conn{
		id:          uuid.New().String(),
		address:     address,
		connectedAt: time.Now(),
		ws:          ws,
		cfg:         cfg,
		send:        make(chan []byte, bufferSize),
		inbound:     rate.NewLimiter(limit, burst),
		done:        make(chan struct{}),
	}
}

func (c *Conn) ID() string      { return c.id }
func (c *Conn) Address() string { return c.address }

// Done is closed when the connection has terminated.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err is the termination cause. Only meaningful once Done is closed.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) Open() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send queues frame without blocking.
func (c *Conn) Send(frame []byte) error {
	if !c.Open() {
		return ErrChannelClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		c.dropped.Add(1)
		return ErrSlowConsumer
	}
}

// Close sends a going-away close frame and terminates the connection.
func (c *Conn) Close() error {
	c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	c.terminate(nil)
	return nil
}

func (c *Conn) Status() ConnStatus {
	return ConnStatus{
		ID:            c.id,
		Address:       c.address,
		ConnectedAt:   c.connectedAt.Unix(),
		FramesSent:    c.sent.Load(),
		FramesDropped: c.dropped.Load(),
	}
}

func (c *Conn) start() {
	go c.readPump()
	go c.writePump()
}

func (c *Conn) terminate(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) closeWithCode(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (c *Conn) writeDeadline() time.Time {
	if c.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.cfg.WriteTimeout)
}

// readPump discards client frames; it exists to process control frames and
// to notice the peer going away.
func (c *Conn) readPump() {
	if c.cfg.ReadLimit > 0 {
		c.ws.SetReadLimit(c.cfg.ReadLimit)
	}

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.terminate(readError(err))
			return
		}

		if !c.inbound.Allow() {
			c.closeWithCode(websocket.ClosePolicyViolation, ErrInboundFlood.Error())
			c.terminate(ErrInboundFlood)
			return
		}
	}
}

func (c *Conn) writePump() {
	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(c.writeDeadline())
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.terminate(fmt.Errorf("write: %w", err))
				return
			}
			c.sent.Add(1)
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.writeDeadline()); err != nil {
				c.terminate(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// readError maps a read failure to a termination cause; peer-initiated
// closes are not errors.
func readError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && !websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return nil
	}
	return fmt.Errorf("read: %w", err)
}
