package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"statarb.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		BasePath        string        `yaml:"base_path"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       struct {
			Capacity     int     `yaml:"capacity" default:"20"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type" default:"none"`
		BatchSize    int           `yaml:"batch_size" default:"200" validate:"gte=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"statarb.trades"`
		SignalsTopic string   `yaml:"signals_topic" default:"statarb.signals"`
		QuotesTopic  string   `yaml:"quotes_topic" default:"statarb.quotes"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"statarb"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"statarb"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Cache struct {
		Type   string        `yaml:"type" default:"memory" validate:"oneof=memory redis layered"`
		TTL    time.Duration `yaml:"ttl" default:"30s"`
		Mirror time.Duration `yaml:"mirror_interval" default:"1s"`
		Redis  struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"statarb"`
			PoolSize int    `yaml:"pool_size" default:"10"`
			MinIdle  int    `yaml:"min_idle" default:"2"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Notifications struct {
		Enabled    bool          `yaml:"enabled"`
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
	} `yaml:"notifications"`
	Feed struct {
		Mode              string        `yaml:"mode" default:"sim" validate:"oneof=ws kafka sim"`
		Exchanges         []string      `yaml:"exchanges" validate:"min=2,dive,required"`
		Symbols           []string      `yaml:"symbols" validate:"min=1,dive,required"`
		StaleAfter        time.Duration `yaml:"stale_after" default:"5s"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"1s"`
		MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"30s"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"20s"`
		MaxRPS            int           `yaml:"max_rps"`
		BufferSize        int           `yaml:"buffer_size" default:"1024"`
		QueueSize         int           `yaml:"queue_size" default:"256"`
		DispatchTimeout   time.Duration `yaml:"dispatch_timeout" default:"50ms"`
		RecordPath        string        `yaml:"record_path"`
		Binance           struct {
			WebSocketURL string `yaml:"websocket_url" default:"wss://stream.binance.com:9443/stream"`
		} `yaml:"binance"`
		Kraken struct {
			WebSocketURL string `yaml:"websocket_url" default:"wss://ws.kraken.com"`
		} `yaml:"kraken"`
		Sim struct {
			Interval   time.Duration      `yaml:"interval" default:"250ms"`
			Volatility float64            `yaml:"volatility" default:"0.0004"`
			Seed       int64              `yaml:"seed"`
			BasePrices map[string]float64 `yaml:"base_prices"`
		} `yaml:"sim"`
	} `yaml:"feed"`
	Signal struct {
		WindowSize        int     `yaml:"window_size" default:"100" validate:"gte=2"`
		MinSamples        int     `yaml:"min_samples"`
		Epsilon           float64 `yaml:"epsilon" default:"1e-9"`
		ShortWindow       int     `yaml:"short_window" default:"5" validate:"gte=1"`
		LongWindow        int     `yaml:"long_window" default:"20" validate:"gte=1"`
		MomentumWeight    float64 `yaml:"momentum_weight" default:"0.2"`
		VolumeWeightFloor float64 `yaml:"volume_weight_floor" default:"0.25"`
		VolumeWeightCap   float64 `yaml:"volume_weight_cap" default:"2"`
		BaseThreshold     float64 `yaml:"base_threshold" default:"1.2" validate:"gt=0"`
		MinThreshold      float64 `yaml:"min_threshold" default:"0.5" validate:"gt=0"`
		MaxThreshold      float64 `yaml:"max_threshold" default:"5" validate:"gt=0"`
		VolImpact         float64 `yaml:"vol_impact" default:"0.5"`
		VolHistory        int     `yaml:"vol_history" default:"200"`
		MomentumImpact    float64 `yaml:"momentum_impact" default:"0.1"`
		TimeFactors       []struct {
			FromHour int     `yaml:"from_hour" validate:"gte=0,lte=23"`
			ToHour   int     `yaml:"to_hour" validate:"gte=0,lte=23"`
			Factor   float64 `yaml:"factor" validate:"gt=0"`
		} `yaml:"time_factors" validate:"dive"`
	} `yaml:"signal"`
	Execution struct {
		TradeAmount       float64            `yaml:"trade_amount" default:"0.001" validate:"gt=0"`
		ExitZThreshold    float64            `yaml:"exit_z_threshold" default:"0.3" validate:"gte=0"`
		StopLossAmount    float64            `yaml:"stop_loss_amount" default:"5" validate:"gt=0"`
		StartingBalance   float64            `yaml:"starting_balance" default:"10000" validate:"gt=0"`
		MaxPosition       map[string]float64 `yaml:"max_position"`
		SlippageAllowance float64            `yaml:"slippage_allowance" default:"0.02" validate:"gte=0"`
		DepthImpact       float64            `yaml:"depth_impact" default:"0.0005" validate:"gte=0"`
		TransferCost      float64            `yaml:"transfer_cost" default:"0.05" validate:"gte=0"`
		Cooldown          time.Duration      `yaml:"cooldown" default:"30s"`
		MinSpreadRatio    float64            `yaml:"min_spread_ratio" validate:"gte=0"`
		MaxDailyLoss      float64            `yaml:"max_daily_loss" validate:"gte=0"`
		Fees              map[string]struct {
			Maker float64 `yaml:"maker" validate:"gte=0"`
			Taker float64 `yaml:"taker" validate:"gte=0"`
			Tiers []struct {
				MinVolume float64 `yaml:"min_volume" validate:"gte=0"`
				Maker     float64 `yaml:"maker" validate:"gte=0"`
				Taker     float64 `yaml:"taker" validate:"gte=0"`
			} `yaml:"tiers" validate:"dive"`
		} `yaml:"fees" validate:"dive"`
	} `yaml:"execution"`
	Ledger struct {
		RecentCapacity int `yaml:"recent_capacity" default:"1000" validate:"gte=1"`
	} `yaml:"ledger"`
}

var validate = validator.New()

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if c.Signal.MinSamples == 0 {
		c.Signal.MinSamples = (c.Signal.WindowSize + 1) / 2
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Feed.Symbols = splitList(v)
	}
	if v := os.Getenv("EXCHANGES"); v != "" {
		c.Feed.Exchanges = splitList(v)
	}
	if v := os.Getenv("FEED_MODE"); v != "" {
		c.Feed.Mode = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		c.Notifications.WebhookURL = v
		c.Notifications.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate runs tag validation plus the cross-field checks tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Backend.Type {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for backend 'kafka'")
		}
	case "clickhouse":
		if !c.ClickHouse.Enabled {
			return fmt.Errorf("clickhouse.enabled must be true for backend 'clickhouse'")
		}
	default:
		return fmt.Errorf("backend.type must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Feed.Mode == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for feed.mode 'kafka'")
	}
	if c.Log.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when log.collector is enabled")
	}

	if c.Signal.MinSamples < 1 || c.Signal.MinSamples > c.Signal.WindowSize {
		return fmt.Errorf("signal.min_samples must be in [1, window_size], got %d", c.Signal.MinSamples)
	}
	if c.Signal.ShortWindow > c.Signal.LongWindow {
		return fmt.Errorf("signal.short_window (%d) must not exceed long_window (%d)", c.Signal.ShortWindow, c.Signal.LongWindow)
	}
	if c.Signal.MinThreshold > c.Signal.MaxThreshold {
		return fmt.Errorf("signal.min_threshold must not exceed max_threshold")
	}
	if c.Signal.VolumeWeightFloor > c.Signal.VolumeWeightCap {
		return fmt.Errorf("signal.volume_weight_floor must not exceed volume_weight_cap")
	}
	if c.Execution.ExitZThreshold >= c.Signal.BaseThreshold {
		return fmt.Errorf("execution.exit_z_threshold must be below signal.base_threshold")
	}

	seen := make(map[string]struct{}, len(c.Feed.Exchanges))
	for _, ex := range c.Feed.Exchanges {
		if _, dup := seen[ex]; dup {
			return fmt.Errorf("feed.exchanges: duplicate exchange %q", ex)
		}
		seen[ex] = struct{}{}
		if _, ok := c.Execution.Fees[ex]; !ok {
			return fmt.Errorf("execution.fees: missing fee schedule for exchange %q", ex)
		}
	}
	for _, s := range c.Feed.Symbols {
		if !strings.Contains(s, "/") {
			return fmt.Errorf("feed.symbols: %q must be BASE/QUOTE", s)
		}
	}
	return nil
}
