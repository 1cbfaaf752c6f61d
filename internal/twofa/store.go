package twofa

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUnavailable = errors.New("two-factor store unavailable")
	ErrCodeExpired = errors.New("two-factor code expired or not issued")
)

const codeTTL = 5 * time.Minute

// Store issues short-lived six digit login codes backed by redis.
type Store struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewStore(redis redis.Cmdable) *Store {
	return &Store{redis: redis, ttl: codeTTL}
}

// Issue generates a fresh code for the admin, replacing any outstanding one.
func (s *Store) Issue(ctx context.Context, adminID string) (string, error) {
	if s == nil || s.redis == nil {
		return "", ErrUnavailable
	}
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, codeKey(adminID), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store two-factor code: %w", err)
	}
	return code, nil
}

// Verify consumes the outstanding code for the admin. A code verifies at
// most once; success deletes it.
func (s *Store) Verify(ctx context.Context, adminID, code string) error {
	if s == nil || s.redis == nil {
		return ErrUnavailable
	}
	stored, err := s.redis.GetDel(ctx, codeKey(adminID)).Result()
	if err == redis.Nil {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("load two-factor code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrCodeExpired
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate two-factor code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func codeKey(adminID string) string {
	return "twofa:" + adminID
}
