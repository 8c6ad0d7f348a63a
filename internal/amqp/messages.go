package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Change operations carried by EntriesChangedMessage.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// EntriesChangedMessage announces committed entry mutations. It carries only
// IDs; consumers re-read the entries from storage.
type EntriesChangedMessage struct {
	Op        string    `json:"op"`
	IDs       []string  `json:"ids"`
	SeriesID  string    `json:"series_id,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntriesChangedMessage(op string, ids []string, seriesID, scope string) *EntriesChangedMessage {
	return &EntriesChangedMessage{
		Op:        op,
		IDs:       append([]string(nil), ids...),
		SeriesID:  seriesID,
		Scope:     scope,
		Timestamp: time.Now().UTC(),
	}
}

func (m *EntriesChangedMessage) Validate() error {
	switch m.Op {
	case OpUpsert, OpDelete:
	default:
		return fmt.Errorf("unknown op %q", m.Op)
	}
	if len(m.IDs) == 0 {
		return fmt.Errorf("%s message without ids", m.Op)
	}
	return nil
}

func (m *EntriesChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntriesChangedMessageFromJSON decodes and validates a message body.
func EntriesChangedMessageFromJSON(data []byte) (*EntriesChangedMessage, error) {
	var msg EntriesChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
