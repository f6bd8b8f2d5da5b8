package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
feed:
  exchanges: [binance, kraken]
  symbols: [BTC/USDT]
execution:
  fees:
    binance: {maker: 0.0002, taker: 0.0004}
    kraken: {maker: 0.00016, taker: 0.00026}
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, "none", c.Backend.Type)
	assert.Equal(t, "sim", c.Feed.Mode)
	assert.Equal(t, 100, c.Signal.WindowSize)
	assert.Equal(t, 50, c.Signal.MinSamples)
	assert.Equal(t, 50*time.Millisecond, c.Feed.DispatchTimeout)
	assert.Equal(t, 30*time.Second, c.Execution.Cooldown)
	assert.InDelta(t, 0.0004, c.Execution.Fees["binance"].Taker, 1e-12)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"single exchange": `
feed: {exchanges: [binance], symbols: [BTC/USDT]}
execution: {fees: {binance: {maker: 0, taker: 0}}}`,
		"missing fees": `
feed: {exchanges: [binance, kraken], symbols: [BTC/USDT]}
execution: {fees: {binance: {maker: 0, taker: 0}}}`,
		"bad symbol": `
feed: {exchanges: [binance, kraken], symbols: [BTCUSDT]}
execution: {fees: {binance: {maker: 0, taker: 0}, kraken: {maker: 0, taker: 0}}}`,
		"kafka backend without brokers": minimal + `
backend: {type: kafka}`,
		"exit not below entry": minimal + `
signal: {base_threshold: 0.3, min_threshold: 0.1}`,
		"unknown cache type": minimal + `
cache: {type: disk}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	t.Setenv("SYMBOLS", "BTC/USDT, ETH/USDT,")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, c.Feed.Symbols)
	assert.Equal(t, "kafka", c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadWithEnv_InvalidOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	t.Setenv("BACKEND", "postgres")
	_, err := LoadWithEnv(path)
	assert.Error(t, err)
}
