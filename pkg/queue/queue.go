package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
	// PollTimeout bounds one blocking pop.
	PollTimeout time.Duration
}

// Message is the envelope stored in Redis. Payload is kept raw so jobs decode
// it into their own type with ParsePayload.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewMessage(msgType string, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload converts whatever a job received into *T.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return decode[T](p)
	case []byte:
		return decode[T](p)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-marshal payload: %w", err)
		}
		return decode[T](b)
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

func decode[T any](b []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &out, nil
}
