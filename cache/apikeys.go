package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// APIKeyRecord is the cache-resident shape of an API key. Ingest writes the
// full auth entity; validation only needs these fields.
type APIKeyRecord struct {
	KeyHash   string    `json:"key_hash"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// HashAPIKey returns the lowercase sha-256 hex digest of a raw API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyStore validates raw API keys against api_key:{sha256hex} records.
type APIKeyStore struct {
	store *Store
}

// NewAPIKeyStore wraps a cache store for API key lookups.
func NewAPIKeyStore(s *Store) *APIKeyStore {
	return &APIKeyStore{store: s}
}

// Put stores an API key record under its hash.
func (a *APIKeyStore) Put(rec APIKeyRecord) error {
	if rec.KeyHash == "" {
		return fmt.Errorf("cache: api key record missing key_hash")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.store.Set(APIKeyKey(rec.KeyHash), data)
}

// Validate reports whether raw is a known, active API key: true iff
// api_key:{sha256(raw)} exists and its is_active flag is set.
func (a *APIKeyStore) Validate(raw string) (bool, error) {
	data, err := a.store.Get(APIKeyKey(HashAPIKey(raw)))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var rec APIKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("cache: decoding api key record: %w", err)
	}
	return rec.IsActive, nil
}

// Revoke marks the key with the given hash inactive, if present.
func (a *APIKeyStore) Revoke(keyHash string) error {
	data, err := a.store.Get(APIKeyKey(keyHash))
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var rec APIKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("cache: decoding api key record: %w", err)
	}
	rec.IsActive = false
	updated, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.store.Set(APIKeyKey(keyHash), updated)
}
