package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Publisher ships a batch of aggregated entries to some sink (Kafka topic,
// Redis queue).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // flush early when this many distinct entries pile up
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated error entries (same level, message, fields and
// caller) into one counted entry and publishes the batch periodically.
type LogCollector struct {
	cfg     *CollectionConfig
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := fingerprint(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// Pending reports the number of distinct entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func fingerprint(level, message string, fields map[string]interface{}, caller string) uint64 {
	// json.Marshal sorts map keys, so equal field sets hash equally.
	b, _ := json.Marshal(fields)
	d := xxhash.New()
	_, _ = d.WriteString(level)
	_, _ = d.WriteString(message)
	_, _ = d.WriteString(caller)
	_, _ = d.Write(b)
	return d.Sum64()
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return
	}

	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// the logger itself may be what is failing, so go straight to stderr
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
		}
	}()
}

func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
