package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/toolyard/marketplace-backend/api/responses"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
)

const maxRateLimitBody = 64 << 10

// RateCounter is a fixed-window counter store.
type RateCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, scope, value string) string
}

// RateScope names what a counter is keyed on.
type RateScope string

const (
	ScopeIP    RateScope = "ip"
	ScopeEmail RateScope = "email"
	ScopeGuest RateScope = "guest"
)

// RatePolicy caps requests per scope inside one window. A zero limit disables that scope.
type RatePolicy struct {
	Name   string
	Window time.Duration
	Limits map[RateScope]int
}

// scopes is evaluated in this order so the cheapest key is checked first.
var scopes = []RateScope{ScopeIP, ScopeGuest, ScopeEmail}

func (p RatePolicy) active() bool {
	if p.Window <= 0 {
		return false
	}
	for _, limit := range p.Limits {
		if limit > 0 {
			return true
		}
	}
	return false
}

// RateLimit throttles a route by client IP, guest device and the "email" field of a JSON body.
// Emails are hashed before they reach the counter store or the logs.
func RateLimit(policy RatePolicy, counter RateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, scope := range scopes {
				limit := policy.Limits[scope]
				if limit <= 0 {
					continue
				}
				value, err := scopeValue(r, scope)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				if value == "" {
					continue
				}
				count, err := counter.IncrWithTTL(ctx, counter.RateLimitKey(policy.Name, string(scope), value), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"rate_policy": policy.Name,
							"rate_scope":  string(scope),
							"attempts":    count,
							"limit":       limit,
						}), "rate limit exceeded")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func scopeValue(r *http.Request, scope RateScope) (string, error) {
	switch scope {
	case ScopeIP:
		return clientIP(r), nil
	case ScopeGuest:
		if p := PrincipalFromContext(r.Context()); p.IsGuest() {
			return p.GuestID, nil
		}
		return "", nil
	case ScopeEmail:
		email, err := peekEmail(r)
		if err != nil || email == "" {
			return "", err
		}
		sum := sha256.Sum256([]byte(email))
		return hex.EncodeToString(sum[:]), nil
	}
	return "", nil
}

// peekEmail reads the body and puts it back for the next handler.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(payload.Email)), nil
}

// clientIP prefers the first X-Forwarded-For hop; the API runs behind a single load balancer.
func clientIP(r *http.Request) string {
	if forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
		return strings.TrimSpace(forwarded)
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
