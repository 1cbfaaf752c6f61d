package twofa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCodeFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9')
		}
		seen[code] = struct{}{}
	}
	// 100 draws from a million values collide rarely; all identical would
	// mean a broken generator.
	require.Greater(t, len(seen), 1)
}

func TestStoreUnavailable(t *testing.T) {
	var s *Store
	_, err := s.Issue(context.Background(), "admin-1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, s.Verify(context.Background(), "admin-1", "123456"), ErrUnavailable)

	s = NewStore(nil)
	_, err = s.Issue(context.Background(), "admin-1")
	require.ErrorIs(t, err, ErrUnavailable)
}
