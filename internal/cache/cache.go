package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching derived, recomputable values
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a namespaced cache key from arbitrary content
func Key(namespace string, content []byte) string {
	hash := sha256.Sum256(content)
	return "verdict:" + namespace + ":v1:" + hex.EncodeToString(hash[:])
}
