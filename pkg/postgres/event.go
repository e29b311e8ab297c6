package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"changefeed-gateway/internal/models"
)

// notification is the NOTIFY payload published by the change trigger.
type notification struct {
	Table     string          `json:"table"`
	Operation string          `json:"operation"`
	ID        json.RawMessage `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type namespace struct {
	Coll string `json:"coll"`
}

type documentKey struct {
	ID json.RawMessage `json:"_id"`
}

// changeEvent mirrors the shape of a document-store change event so clients
// see one format regardless of the upstream.
type changeEvent struct {
	OperationType string          `json:"operationType"`
	Namespace     namespace       `json:"ns"`
	DocumentKey   documentKey     `json:"documentKey"`
	FullDocument  json.RawMessage `json:"fullDocument,omitempty"`
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("invalid notification payload: %w", err)
	}
	if n.Table == "" {
		return n, fmt.Errorf("notification payload has no table")
	}
	if len(n.ID) == 0 {
		return n, fmt.Errorf("notification payload has no id")
	}
	n.Operation = strings.ToLower(n.Operation)
	return n, nil
}

func (n notification) needsLookup() bool {
	return len(n.Data) == 0 && n.Operation != "delete"
}

// keyText renders the id as the text parameter bound in the row lookup.
func (n notification) keyText() string {
	var s string
	if err := json.Unmarshal(n.ID, &s); err == nil {
		return s
	}
	return string(n.ID)
}

func buildEvent(n notification, doc json.RawMessage) (models.ChangeEvent, error) {
	evt := changeEvent{
		OperationType: n.Operation,
		Namespace:     namespace{Coll: n.Table},
		DocumentKey:   documentKey{ID: n.ID},
	}
	if n.Operation != "delete" {
		if len(doc) == 0 {
			doc = json.RawMessage("null")
		}
		evt.FullDocument = doc
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return models.ChangeEvent(data), nil
}
