package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSKVConfig configures the NATS JetStream KV cache backend, letting
// several processes share one resolution cache.
type NATSKVConfig struct {
	// URL is the NATS server url; ignored when Conn is provided.
	URL string
	// Bucket is the KV bucket name; created on demand.
	Bucket string
	// CredsFile is an optional NATS credentials file.
	CredsFile string
	// TTL is applied bucket-wide when the bucket is created.
	TTL time.Duration
	// Conn reuses an existing connection instead of dialing.
	Conn *nats.Conn
}

// NATSKVCache is a Cache backed by a NATS JetStream key-value bucket.
type NATSKVCache struct {
	conn    *nats.Conn
	kv      nats.KeyValue
	ownConn bool
}

// NewNATSKVCache connects (unless a connection is supplied) and binds or
// creates the bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil || config.Bucket == "" {
		return nil, fmt.Errorf("%w: NATS cache requires a bucket name", ErrArgument)
	}

	conn := config.Conn
	ownConn := false

	if conn == nil {
		var opts []nats.Option
		if config.CredsFile != "" {
			opts = append(opts, nats.UserCredentials(config.CredsFile))
		}

		dialed, err := nats.Connect(config.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}

		conn = dialed
		ownConn = true
	}

	js, err := conn.JetStream()
	if err != nil {
		if ownConn {
			conn.Close()
		}

		return nil, fmt.Errorf("getting JetStream context: %w", err)
	}

	kv, err := js.KeyValue(config.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: config.Bucket,
			TTL:    config.TTL,
		})
	}

	if err != nil {
		if ownConn {
			conn.Close()
		}

		return nil, fmt.Errorf("binding KV bucket %q: %w", config.Bucket, err)
	}

	return &NATSKVCache{conn: conn, kv: kv, ownConn: ownConn}, nil
}

// kvKey maps a reference string onto the KV key space: "/" is not a valid
// NATS key character.
func kvKey(key string) string {
	return strings.ReplaceAll(key, "/", ".")
}

type natsKVEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	ETag      string    `json:"etag,omitempty"`
}

// Get retrieves an entry from the bucket.
func (c *NATSKVCache) Get(_ context.Context, key string) (*CacheEntry, error) {
	kvEntry, err := c.kv.Get(kvKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, key)
		}

		return nil, fmt.Errorf("getting cache entry: %w", err)
	}

	var stored natsKVEntry
	if err := json.Unmarshal(kvEntry.Value(), &stored); err != nil {
		return nil, fmt.Errorf("parsing cache entry: %w", err)
	}

	entry := &CacheEntry{Data: stored.Data, ExpiresAt: stored.ExpiresAt, ETag: stored.ETag}
	if entry.expired() {
		_ = c.kv.Delete(kvKey(key))

		return nil, fmt.Errorf("%w: %s", ErrCacheEntryExpired, key)
	}

	return entry, nil
}

// Set stores an entry in the bucket.
func (c *NATSKVCache) Set(_ context.Context, key string, entry *CacheEntry) error {
	stored, err := json.Marshal(natsKVEntry{
		Data:      entry.Data,
		ExpiresAt: entry.ExpiresAt,
		ETag:      entry.ETag,
	})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	if _, err := c.kv.Put(kvKey(key), stored); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}

	return nil
}

// Delete removes an entry from the bucket.
func (c *NATSKVCache) Delete(_ context.Context, key string) error {
	err := c.kv.Delete(kvKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting cache entry: %w", err)
	}

	return nil
}

// Clear purges every key in the bucket.
func (c *NATSKVCache) Clear(_ context.Context) error {
	keys, err := c.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}

		return fmt.Errorf("listing cache keys: %w", err)
	}

	for _, key := range keys {
		if err := c.kv.Purge(key); err != nil {
			return fmt.Errorf("purging cache entry: %w", err)
		}
	}

	return nil
}

// Has reports whether a live entry exists.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Keys lists the stored reference strings. Type names never contain a dot,
// so only the first one maps back to "/".
func (c *NATSKVCache) Keys(_ context.Context) ([]string, error) {
	keys, err := c.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing cache keys: %w", err)
	}

	references := make([]string, 0, len(keys))
	for _, key := range keys {
		references = append(references, strings.Replace(key, ".", "/", 1))
	}

	return references, nil
}

// Close releases the NATS connection when this cache owns it.
func (c *NATSKVCache) Close() {
	if c.ownConn {
		c.conn.Close()
	}
}
