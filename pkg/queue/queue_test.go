package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tradeNote struct {
	ID  string  `json:"id"`
	PnL float64 `json:"pnl"`
}

func TestParsePayload(t *testing.T) {
	want := tradeNote{ID: "t-1", PnL: -1.5}

	msg, err := NewMessage("trade.closed", want)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "trade.closed", msg.Type)

	// round trip through the stored envelope
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	var stored Message
	require.NoError(t, json.Unmarshal(b, &stored))

	got, err := ParsePayload[tradeNote](stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[tradeNote](map[string]interface{}{"id": "t-2", "pnl": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "t-2", got.ID)

	got, err = ParsePayload[tradeNote](&want)
	require.NoError(t, err)
	assert.Same(t, &want, got)

	_, err = ParsePayload[tradeNote](42)
	assert.Error(t, err)
}

func TestQueueKeys(t *testing.T) {
	q := &RedisQueue{keyPrefix: "x"}
	WithKeyPrefix("statarb:notify")(q)
	assert.Equal(t, "statarb:notify:messages", q.queueKey())
	assert.Equal(t, "statarb:notify:retry", q.retryKey())
	assert.Equal(t, "statarb:notify:dlq", q.deadLetterKey())
	assert.Equal(t, "consumer-only", ModeConsumerOnly.String())
}
