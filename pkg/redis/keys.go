package redis

import "strings"

const keyNamespace = "tyd"

// Key families.
const (
	familyIdempotency    = "idempotency"
	familyLock           = "lock"
	familyGuestCart      = "guest_cart"
	familyCheckout       = "checkout_session"
	familyRecentlyViewed = "recently_viewed"
	familyRateLimit      = "rl"
)

// key joins non-empty parts under the namespace: tyd:<family>:<part>...
func key(family string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(family)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string { return key(familyIdempotency, scope, id) }

func (c *Client) LockKey(scope, id string) string { return key(familyLock, scope, id) }

func (c *Client) GuestCartKey(deviceID string) string { return key(familyGuestCart, deviceID) }

func (c *Client) CheckoutSessionKey(sessionID string) string { return key(familyCheckout, sessionID) }

func (c *Client) RecentlyViewedKey(viewer string) string { return key(familyRecentlyViewed, viewer) }

func (c *Client) RateLimitKey(policy, scope, value string) string {
	return key(familyRateLimit, policy, scope, value)
}
