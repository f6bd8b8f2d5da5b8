package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"StatArb/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer runs one reader per registered topic feeding a worker pool.
// Every (topic, partition) is pinned to one worker and its queue, so a
// partition's messages are handled strictly in fetch order.
type Consumer struct {
	cfg      *ConsumerConfig
	logger   *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	queues   []chan *message
	stopChan chan struct{}
	stopOnce sync.Once
	readWg   sync.WaitGroup
	workWg   sync.WaitGroup
}

type message struct {
	topic string
	km    kafka.Message
}

func NewConsumer(l *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "statarb",
		WorkerCount: 1,
		BufferSize:  100,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
		ReadTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	c := &Consumer{
		cfg:      cfg,
		logger:   l.With(logger.String("component", "kafka_consumer")),
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		stopChan: make(chan struct{}),
	}
	perWorker := cfg.BufferSize / cfg.WorkerCount
	if perWorker < 1 {
		perWorker = 1
	}
	c.queues = make([]chan *message, cfg.WorkerCount)
	for i := range c.queues {
		c.queues[i] = make(chan *message, perWorker)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetricsOnce()
	return c, nil
}

// RegisterHandler binds handler to its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.logger.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets the hook run around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Topics lists the registered topics.
func (c *Consumer) Topics() []string {
	out := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		out = append(out, t)
	}
	return out
}

// Start launches readers and workers and returns immediately.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	c.startWorkers()
	for topic, reader := range c.readers {
		c.readWg.Add(1)
		go c.consumeMessages(topic, reader)
	}
	c.logger.Info("kafka consumer started",
		logger.Strings("topics", c.Topics()),
		logger.Int("workers", c.cfg.WorkerCount),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop halts the readers first, lets workers finish what was already
// fetched, then closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if err := wait(ctx, &c.readWg); err != nil {
			stopErr = err
			return
		}
		c.closeQueues()
		stopErr = wait(ctx, &c.workWg)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.logger.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.logger.Warn("close dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.logger.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) startWorkers() {
	for _, q := range c.queues {
		c.workWg.Add(1)
		go c.messageWorker(q)
	}
}

func (c *Consumer) closeQueues() {
	for _, q := range c.queues {
		close(q)
	}
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consumeMessages(topic string, reader *kafka.Reader) {
	defer c.readWg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadTimeout)
		km, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.logger.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}

		// Blocks while the worker is saturated; nothing is dropped.
		q := c.queues[workerFor(topic, km.Partition, len(c.queues))]
		select {
		case q <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(q)))
		case <-c.stopChan:
			return
		}
	}
}

// workerFor pins a (topic, partition) to one of n workers.
func workerFor(topic string, partition, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(topic+"/"+strconv.Itoa(partition)) % uint64(n))
}

func (c *Consumer) messageWorker(q <-chan *message) {
	defer c.workWg.Done()
	for msg := range q {
		handler, ok := c.handlers[msg.topic]
		if !ok {
			continue
		}
		start := time.Now()
		c.handle(handler, msg)
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
		consumerQueueDepth.WithLabelValues(msg.topic).Set(float64(len(q)))
	}
}

func (c *Consumer) handle(handler MessageHandler, msg *message) {
	defer func() {
		if r := recover(); r != nil {
			consumerErrors.WithLabelValues(msg.topic, "panic").Inc()
			c.logger.Error("panic in message handler", logger.String("topic", msg.topic), logger.Any("panic", r))
		}
	}()

	var err error
	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			err = berr
			break
		}
		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stopChan:
			// not committed; the group redelivers after restart
			return
		}
	}

	if err != nil {
		consumerErrors.WithLabelValues(msg.topic, "handle").Inc()
		c.hook.OnError(context.Background(), msg.topic, msg.km, msg.km.Value, err)
		c.logger.Error("message handling failed",
			logger.String("topic", msg.topic),
			logger.Int("attempts", attempts),
			logger.Error(err))
		if !c.deadLetter(msg) {
			return
		}
	}

	// Commit on success or after the DLQ took it, so poison messages
	// do not loop forever.
	if reader := c.readers[msg.topic]; reader != nil {
		_ = c.commitWithRetry(reader, msg.km, 3)
	}
}

// deadLetter forwards msg to the DLQ topic and reports whether it may be
// committed.
func (c *Consumer) deadLetter(msg *message) bool {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return false
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.km.Key,
		Value:   msg.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
	})
	if err != nil {
		c.logger.Error("write dlq", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.logger.Error("commit offset", logger.Int("attempts", max), logger.Error(err))
	return err
}

// backoffWithJitter doubles from min per attempt up to max, then takes off
// up to half at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min * time.Duration(1<<uint(attempt-1)); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerErrors        *prometheus.CounterVec
	consumerOnce          sync.Once
)

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "statarb_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "statarb_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "statarb_kafka_consumer_errors_total", Help: "Messages that failed after retries"},
			[]string{"topic", "kind"},
		)
	})
}
