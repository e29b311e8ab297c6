package websocket

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrChannelClosed is returned when delivering to a connection that is no
	// longer open.
	ErrChannelClosed = errors.New("channel closed")
	// ErrSlowConsumer is returned when a connection's send buffer is full.
	ErrSlowConsumer = errors.New("send buffer full")
	// ErrInboundFlood terminates connections that exceed their inbound budget.
	ErrInboundFlood = errors.New("inbound message rate exceeded")
)

type RejectReason string

const (
	ReasonRateLimited  RejectReason = "rate_limited"
	ReasonUnauthorized RejectReason = "unauthorized"
)

// AdmissionError refuses a connection attempt before the protocol upgrade.
type AdmissionError struct {
	Reason  RejectReason
	Address string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission refused for %s: %s", e.Address, e.Reason)
}

// StatusCode is the HTTP status sent in place of the upgrade.
func (e *AdmissionError) StatusCode() int {
	switch e.Reason {
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}
