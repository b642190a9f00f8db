package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisKey is where the upstream allocation bridge publishes its latest
// document.
const RedisKey = "orderrouter:allocations"

// Source reads the latest allocation hand-off from wherever the upstream
// pipeline publishes it. The core assumes nothing about the transport.
type Source interface {
	Latest(ctx context.Context) (Document, error)
}

// MemorySource is an in-process allocation hand-off for tests and
// single-binary runs.
type MemorySource struct {
	mu  sync.RWMutex
	doc Document
	set bool
}

// Put stores the document served by Latest
func (m *MemorySource) Put(doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	m.set = true
}

// Latest returns the stored document
func (m *MemorySource) Latest(context.Context) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Document{}, fmt.Errorf("no allocation published yet")
	}
	return m.doc, nil
}

// RedisSource reads allocation documents from Redis
type RedisSource struct {
	client *redis.Client
	key    string
}

// NewRedisSource creates an allocation source against the given Redis address
func NewRedisSource(addr string) *RedisSource {
	return &RedisSource{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    RedisKey,
	}
}

// Latest fetches and decodes the newest allocation document
func (r *RedisSource) Latest(ctx context.Context) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		return Document{}, fmt.Errorf("read allocation document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode allocation document: %w", err)
	}
	return doc, nil
}

// NewSourceFromEnv selects the Redis source when REDIS_ADDR is set and an
// empty in-memory source otherwise.
func NewSourceFromEnv() Source {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedisSource(addr)
	}
	return &MemorySource{}
}
