package fhir

import (
	"errors"
	"fmt"
	"time"
)

// CacheType selects the cache backend.
type CacheType string

const (
	// CacheTypeMemory is a process-local in-memory cache.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeNATS is a NATS JetStream KV cache shared across processes.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeNone disables caching.
	CacheTypeNone CacheType = "none"
)

// Static errors for cache configuration.
var (
	ErrNATSConfigRequired   = errors.New("NATS configuration required for NATS cache")
	ErrUnsupportedCacheType = errors.New("unsupported cache type")
)

const defaultCacheSize = 1000

// CacheConfig selects and configures a cache backend.
type CacheConfig struct {
	Type CacheType

	// MaxSize bounds the memory backend; 0 means defaultCacheSize.
	MaxSize int

	// TTL bounds entry lifetime; 0 means entries never expire.
	TTL time.Duration

	// NATS configures the NATS KV backend.
	NATS *NATSKVConfig
}

// DefaultCacheConfig returns the memory backend with default bounds.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type:    CacheTypeMemory,
		MaxSize: defaultCacheSize,
	}
}

// NewCacheFromConfig creates a cache backend from configuration.
func NewCacheFromConfig(config *CacheConfig) (Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	switch config.Type {
	case CacheTypeMemory:
		maxSize := config.MaxSize
		if maxSize == 0 {
			maxSize = defaultCacheSize
		}

		return NewMemoryCache(maxSize), nil

	case CacheTypeNATS:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		if config.NATS.TTL == 0 {
			config.NATS.TTL = config.TTL
		}

		return NewNATSKVCache(config.NATS)

	case CacheTypeNone:
		return NewNoOpCache(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}
