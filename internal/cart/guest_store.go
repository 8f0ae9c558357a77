package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mealicious/storefront-api/pkg/redis"
)

type guestKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(guestID string) string
}

// GuestStore keeps anonymous carts in Redis so they survive page reloads.
type GuestStore struct {
	kv  guestKV
	ttl time.Duration
}

// NewGuestStore builds a Redis-backed guest cart store.
func NewGuestStore(kv guestKV, ttl time.Duration) (*GuestStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("guest cart ttl must be positive")
	}
	return &GuestStore{kv: kv, ttl: ttl}, nil
}

// NewGuestID allocates an id for a new guest cart.
func NewGuestID() string {
	return uuid.NewString()
}

// ValidGuestID reports whether id looks like an id from NewGuestID.
func ValidGuestID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// Load returns the stored cart. A missing key yields an empty cart.
func (s *GuestStore) Load(ctx context.Context, guestID string) (*GuestCart, error) {
	raw, err := s.kv.Get(ctx, s.kv.GuestCartKey(guestID))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return NewGuestCart(nil), nil
		}
		return nil, err
	}
	var entries []GuestCartItem
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	return NewGuestCart(entries), nil
}

// Save writes the cart and refreshes its TTL.
func (s *GuestStore) Save(ctx context.Context, guestID string, cart *GuestCart) error {
	payload, err := json.Marshal(cart.Items())
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.kv.GuestCartKey(guestID), string(payload), s.ttl)
}

func (s *GuestStore) Delete(ctx context.Context, guestID string) error {
	return s.kv.Del(ctx, s.kv.GuestCartKey(guestID))
}
