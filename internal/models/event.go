package models

import "encoding/json"

// EventTypeDBChange tags every frame relayed from the upstream change feed.
const EventTypeDBChange = "db_change"

// ChangeEvent is an upstream change notification, forwarded verbatim.
type ChangeEvent = json.RawMessage

// Envelope is the frame broadcast to every connected client
type Envelope struct {
	Type string      `json:"type"`
	Data ChangeEvent `json:"data"`
}

// NewChangeEnvelope wraps an upstream event for broadcast.
func NewChangeEnvelope(event ChangeEvent) Envelope {
	return Envelope{
		Type: EventTypeDBChange,
		Data: event,
	}
}
