package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key/value cache used for cross-process views. Values are
// stored JSON-encoded; strings are stored as-is.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	Close() error
}

// MGetTyped retrieves multiple keys and unmarshals them into T. Missing keys
// and undecodable values are left out.
func MGetTyped[T any](ctx context.Context, c Service, keys ...string) (map[string]T, error) {
	if len(keys) == 0 {
		return make(map[string]T), nil
	}

	raw, err := c.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(raw))
	for key, v := range raw {
		var obj T
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			continue
		}
		out[key] = obj
	}
	return out, nil
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Key joins a namespace and an id.
func Key(namespace, id string) string { return namespace + ":" + id }
