package queue

import "context"

// Job handles one message type. Handle returning an error schedules a retry
// until the retry limit, then the message moves to the dead letter list.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
