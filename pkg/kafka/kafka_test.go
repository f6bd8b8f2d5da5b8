package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StatArb/pkg/logger"
)

func TestBackoffWithJitter(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	d := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, d, min/2)
	assert.LessOrEqual(t, d, min)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))

	b, err = encodeValue(json.RawMessage(`[1]`))
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression(""))
}

func TestHookChain_OrderAndPanic(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "xab", string(data))
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, order)

	boom := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	})
	_, _, _, err = boom.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_PANIC", herr.Code)
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook{}.BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	assert.False(t, StartTime(ctx).IsZero())

	ctx, _, _, _ = TraceHook{}.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	assert.Empty(t, TraceID(ctx))
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(logger.Nop())
	assert.Error(t, err)

	c, err := NewConsumer(logger.Nop(), WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(3))
	require.NoError(t, err)
	assert.Equal(t, 3, c.cfg.WorkerCount)
	assert.Error(t, c.Start(), "start without handlers")
}

func TestWorkerFor_PinsPartition(t *testing.T) {
	for p := 0; p < 16; p++ {
		w := workerFor("quotes", p, 4)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 4)
		assert.Equal(t, w, workerFor("quotes", p, 4))
	}
	assert.Equal(t, 0, workerFor("quotes", 7, 1))
}

type orderHandler struct {
	mu  sync.Mutex
	got map[int][]int64
}

func (h *orderHandler) Topic() string { return "quotes" }

func (h *orderHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Partition int   `json:"p"`
		Offset    int64 `json:"o"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	// widen the window for a reordering between workers
	time.Sleep(time.Duration(m.Offset%3) * time.Millisecond)
	h.mu.Lock()
	h.got[m.Partition] = append(h.got[m.Partition], m.Offset)
	h.mu.Unlock()
	return nil
}

func TestConsumer_PartitionOrderAcrossWorkers(t *testing.T) {
	c, err := NewConsumer(logger.Nop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerWorkers(4),
		WithConsumerBufferSize(64))
	require.NoError(t, err)
	h := &orderHandler{got: make(map[int][]int64)}
	c.RegisterHandler(h)
	c.startWorkers()

	const partitions, perPartition = 3, 20
	for off := int64(0); off < perPartition; off++ {
		for p := 0; p < partitions; p++ {
			b, _ := json.Marshal(map[string]any{"p": p, "o": off})
			km := kafka.Message{Topic: "quotes", Partition: p, Offset: off, Value: b}
			c.queues[workerFor("quotes", p, len(c.queues))] <- &message{topic: "quotes", km: km}
		}
	}
	c.closeQueues()
	c.workWg.Wait()

	for p := 0; p < partitions; p++ {
		require.Len(t, h.got[p], perPartition)
		for i, off := range h.got[p] {
			assert.Equal(t, int64(i), off, "partition %d", p)
		}
	}
}
