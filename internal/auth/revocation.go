package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "cordis:revoked:"

var errMissingRedisClient = errors.New("revocation store: redis client required")

// RevocationStore records token ids that must no longer authenticate.
// Entries only need to outlive the token they revoke.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationStore keeps revocations in process memory. It is used for
// single-instance deployments and tests.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   func() time.Time
}

// NewMemoryRevocationStore constructs an empty in-memory store.
func NewMemoryRevocationStore(clock func() time.Time) *MemoryRevocationStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		clock:   clock,
	}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, until time.Time) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.entries[tokenID] = until
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !s.clock().Before(until) {
		delete(s.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryRevocationStore) pruneLocked() {
	now := s.clock()
	for tokenID, until := range s.entries {
		if !now.Before(until) {
			delete(s.entries, tokenID)
		}
	}
}

// RedisRevocationStore shares revocations across instances; keys expire with the token.
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore creates a Redis-backed revocation store.
func NewRedisRevocationStore(client redis.UniversalClient) (*RedisRevocationStore, error) {
	if client == nil {
		return nil, errMissingRedisClient
	}
	return &RedisRevocationStore{
		client: client,
		prefix: defaultRevocationPrefix,
	}, nil
}

func (s *RedisRevocationStore) key(tokenID string) string {
	return s.prefix + tokenID
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		// already expired, nothing left to revoke
		return nil
	}
	if err := s.client.Set(ctx, s.key(tokenID), until.UTC().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if strings.TrimSpace(tokenID) == "" {
		return false, nil
	}
	count, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return count > 0, nil
}
