package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// UserIndex is the dedicated index holding user records, keyed by username.
const UserIndex = "rag_users"

// User is a tenant record. The api key is stored only as a SHA-256 hash.
type User struct {
	Username   string
	APIKeyHash string
	Metadata   map[string]any
	CreatedAt  time.Time
	LastLogin  *time.Time
}

// HashAPIKey computes the stored form of an api key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
