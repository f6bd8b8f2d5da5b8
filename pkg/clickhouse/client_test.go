package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	o := options(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "statarb",
		User:         "u",
		Password:     "p",
		DialTimeout:  time.Second,
		MaxExecTime:  90 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	assert.Equal(t, []string{"ch:9000"}, o.Addr)
	assert.Equal(t, "default", o.Auth.Database)
	assert.Equal(t, "u", o.Auth.Username)
	assert.Equal(t, clickhouse.Native, o.Protocol)
	assert.Equal(t, 90, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 1, o.Settings["wait_for_async_insert"])

	h := options(ClientConfig{Host: "ch", Port: 8123, UseHTTP: true})
	assert.Equal(t, clickhouse.HTTP, h.Protocol)
	require.NotNil(t, h.Compression)
	assert.Equal(t, clickhouse.CompressionGZIP, h.Compression.Method)
	assert.NotContains(t, h.Settings, "async_insert")
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.Error(t, err)
}
