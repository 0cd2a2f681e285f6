package tokenstore

import (
	"time"

	"BranchChat/pkg/cache"
)

const revokedPrefix = "revoked_jti_"

// Store remembers revoked token ids until the token would have expired anyway.
type Store struct {
	c *cache.Cache
}

func New(c *cache.Cache) *Store {
	return &Store{c: c}
}

// Revoke marks jti as revoked until expiresAt.
func (s *Store) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	s.c.Set(revokedPrefix+jti, struct{}{}, ttl)
}

func (s *Store) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	_, ok := s.c.Get(revokedPrefix + jti)
	return ok
}
