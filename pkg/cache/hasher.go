package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ParamsHash computes a deterministic hash of a JSON-RPC params value,
// used as part of the response-cache key.
// Re-marshaling is sufficient for determinism here: params arrive already
// decoded from the inbound JSON-RPC envelope, and json.Marshal writes
// map keys in sorted order, so object key order does not affect the hash.
func ParamsHash(params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// BuildResponseCacheKey builds the response-cache key for a pure RPC method
// call, keyed by (chain id, method, params hash).
func BuildResponseCacheKey(chainID, method string, params any) string {
	return fmt.Sprintf("rpc:%s:%s:%s", chainID, method, ParamsHash(params))
}

// BuildProjectCacheKey builds the project-metadata cache key.
func BuildProjectCacheKey(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

// BuildIdentityCacheKey builds the identity/name-resolution cache key.
func BuildIdentityCacheKey(chainID, address string) string {
	return fmt.Sprintf("identity:%s:%s", chainID, address)
}

// QuickHash is a general-purpose SHA-256 hash for arbitrary byte payloads.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash is a truncated (16-char) SHA-256 hash for compact cache keys.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
