package tokenstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BranchChat/pkg/cache"
)

func TestRevokeUntilExpiry(t *testing.T) {
	s := New(cache.New(10, 0))
	require.False(t, s.IsRevoked("abc"))

	s.Revoke("abc", time.Now().Add(50*time.Millisecond))
	require.True(t, s.IsRevoked("abc"))

	time.Sleep(80 * time.Millisecond)
	require.False(t, s.IsRevoked("abc"))
}

func TestRevokeIgnoresEmptyAndExpired(t *testing.T) {
	s := New(cache.New(10, 0))
	s.Revoke("", time.Now().Add(time.Hour))
	s.Revoke("old", time.Now().Add(-time.Minute))
	require.False(t, s.IsRevoked(""))
	require.False(t, s.IsRevoked("old"))
}
