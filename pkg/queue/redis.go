package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"StatArb/pkg/logger"
)

type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// RedisQueue is a list-backed job queue: LPUSH to enqueue, BRPOP in workers,
// a sorted set for delayed retries and a dead letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    QueueConfig
	client    *redis.Client
	mode      QueueMode
	keyPrefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keyPrefix = prefix }
}

func NewRedisQueue(lgr *logger.Logger, config QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisQueue{
		logger:    lgr.With(logger.String("component", "queue")),
		config:    config,
		client:    client,
		mode:      mode,
		keyPrefix: "statarb:queue",
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.retryLoop()
	}
	r.logger.Info("redis queue started",
		logger.String("addr", r.client.Options().Addr),
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.config.Workers))
	return nil
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue pushes a message. In consumer modes the type must have a job.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return errors.New("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, r.config.PollTimeout, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.logger.Error("brpop", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Error("unmarshal message", logger.Error(err))
			continue
		}
		r.dispatch(&msg)
	}
}

func (r *RedisQueue) dispatch(msg *Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	err := job.Handle(r.ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	r.logger.Warn("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	b, merr := json.Marshal(msg)
	if msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
		if merr == nil {
			if err := r.client.LPush(context.Background(), r.deadLetterKey(), b).Err(); err != nil {
				r.logger.Error("lpush dlq", logger.Error(err))
			}
		}
		return
	}

	msg.Attempts++
	if b, merr = json.Marshal(msg); merr != nil {
		r.logger.Error("marshal retry", logger.Error(merr))
		return
	}
	at := time.Now().Add(r.config.RetryDelay)
	if err := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: b}).Err(); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

// retryLoop moves due retries back onto the main list.
func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}
		due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
			Min: "0",
			Max: strconv.FormatInt(time.Now().Unix(), 10),
		}).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Error("fetch retries", logger.Error(err))
			}
			continue
		}
		for _, m := range due {
			pipe := r.client.TxPipeline()
			pipe.ZRem(r.ctx, r.retryKey(), m)
			pipe.LPush(r.ctx, r.queueKey(), m)
			if _, err := pipe.Exec(r.ctx); err != nil {
				if r.ctx.Err() != nil {
					return
				}
				r.logger.Error("requeue retry", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }
