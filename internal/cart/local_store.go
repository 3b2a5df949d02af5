package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolyard/marketplace-backend/pkg/redis"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

type localKV interface {
	redis.KV
	GuestCartKey(deviceID string) string
}

// LocalStore keeps guest carts keyed by device id under the guest cart namespace.
type LocalStore struct {
	kv  localKV
	ttl time.Duration
}

func NewLocalStore(kv localKV, ttl time.Duration) (*LocalStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis store required")
	}
	return &LocalStore{kv: kv, ttl: ttl}, nil
}

// Load returns the device's cart or a fresh empty one.
func (s *LocalStore) Load(ctx context.Context, principal types.Principal) (*Cart, error) {
	deviceID := strings.TrimSpace(principal.GuestID)
	if deviceID == "" {
		return nil, fmt.Errorf("guest cart requires a device id")
	}
	raw, err := s.kv.Get(ctx, s.kv.GuestCartKey(deviceID))
	if redis.IsNil(err) {
		return New(uuid.NewString(), nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.OwnerID = nil
	c.recalculate()
	return &c, nil
}

// Save replaces the stored cart and refreshes its TTL.
func (s *LocalStore) Save(ctx context.Context, principal types.Principal, c *Cart) error {
	deviceID := strings.TrimSpace(principal.GuestID)
	if deviceID == "" {
		return fmt.Errorf("guest cart requires a device id")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	return s.kv.Set(ctx, s.kv.GuestCartKey(deviceID), string(payload), s.ttl)
}
