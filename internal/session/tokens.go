package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/crypto"
)

type TokenKind string

const (
	TokenVerification  TokenKind = "verify"
	TokenPasswordReset TokenKind = "reset"
)

// TokenStore holds single-use verification and password-reset tokens.
// Tokens are stored hashed with a TTL: in redis when configured, in
// process memory otherwise.
type TokenStore struct {
	redis *redis.Client

	mu      sync.Mutex
	local   map[string]localToken
	revoked map[string]revokedUser
}

type localToken struct {
	userID    string
	expiresAt time.Time
}

type revokedUser struct {
	revokedAt time.Time
	expiresAt time.Time
}

func NewTokenStore(redisClient *redis.Client) *TokenStore {
	return &TokenStore{
		redis:   redisClient,
		local:   make(map[string]localToken),
		revoked: make(map[string]revokedUser),
	}
}

func tokenKey(kind TokenKind, token string) string {
	return string(kind) + ":" + crypto.HashToken(token)
}

func (s *TokenStore) Save(ctx context.Context, kind TokenKind, token, userID string, ttl time.Duration) error {
	key := tokenKey(kind, token)
	if s.redis != nil {
		return s.redis.Set(ctx, key, userID, ttl).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = localToken{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Consume resolves and deletes the token. A missing or expired token
// reports ok=false without error.
func (s *TokenStore) Consume(ctx context.Context, kind TokenKind, token string) (string, bool, error) {
	key := tokenKey(kind, token)
	if s.redis != nil {
		userID, err := s.redis.GetDel(ctx, key).Result()
		if err == redis.Nil {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return userID, true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.local[key]
	if !ok {
		return "", false, nil
	}
	delete(s.local, key)
	if time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.userID, true, nil
}

func revokedKey(userID string) string {
	return "revoked:" + userID
}

// RevokeUser denylists the user's outstanding access tokens: any token
// issued at or before revokedAt is rejected until the slot expires. The
// ttl only needs to cover the access-token lifetime.
func (s *TokenStore) RevokeUser(ctx context.Context, userID string, revokedAt time.Time, ttl time.Duration) error {
	if s.redis != nil {
		return s.redis.Set(ctx, revokedKey(userID), revokedAt.Unix(), ttl).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[userID] = revokedUser{revokedAt: revokedAt, expiresAt: time.Now().Add(ttl)}
	return nil
}

// UserRevokedAt reports the user's denylist cut, if one is active.
func (s *TokenStore) UserRevokedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	if s.redis != nil {
		unix, err := s.redis.Get(ctx, revokedKey(userID)).Int64()
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		if err != nil {
			return time.Time{}, false, err
		}
		return time.Unix(unix, 0), true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.revoked[userID]
	if !ok {
		return time.Time{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.revoked, userID)
		return time.Time{}, false, nil
	}
	return entry.revokedAt, true, nil
}
