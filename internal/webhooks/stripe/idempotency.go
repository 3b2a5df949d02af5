package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toolyard/marketplace-backend/pkg/redis"
)

// DefaultEventTTL outlasts Stripe's three-day retry schedule.
const DefaultEventTTL = 72 * time.Hour

const eventScope = "stripe_event"

// EventGuard claims Stripe event ids so a redelivered event is acknowledged without being applied twice.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewEventGuard uses DefaultEventTTL when ttl is zero.
func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration) (*EventGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultEventTTL
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// Claim returns true for the first delivery of eventID and false for every later one until Release.
func (g *EventGuard) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.SetNX(ctx, g.key(eventID), eventType, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Release drops the claim after a failed attempt so Stripe's retry is applied.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *EventGuard) key(eventID string) string {
	return g.store.IdempotencyKey(eventScope, eventID)
}
