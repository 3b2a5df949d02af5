package middleware

import (
	"net/http"
	"strings"

	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/api/validators"
	pkgAuth "github.com/toolyard/marketplace-backend/pkg/auth"
	"github.com/toolyard/marketplace-backend/pkg/config"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

const (
	GuestIDHeader    = "X-Guest-Id"
	GuestEmailHeader = "X-Guest-Email"

	maxGuestIDLen = 128
)

// OptionalAuth resolves who is calling. A bearer token must be valid when present; without one the
// request continues as a guest identified by its device id header.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, err := validators.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid credentials"))
				return
			}

			principal := types.Principal{
				GuestID:    validators.SanitizeString(r.Header.Get(GuestIDHeader), maxGuestIDLen),
				GuestEmail: strings.ToLower(validators.SanitizeString(r.Header.Get(GuestEmailHeader), 254)),
			}

			if token != "" {
				claims, err := pkgAuth.ParseAccessToken(cfg, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
					return
				}
				userID := claims.UserID
				principal.UserID = &userID
				principal.Email = claims.Email
				if logg != nil {
					ctx = logg.WithUserID(ctx, userID.String())
				}
			} else if logg != nil && principal.GuestID != "" {
				ctx = logg.WithGuestID(ctx, principal.GuestID)
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// RequireUser rejects guests.
func RequireUser(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PrincipalFromContext(r.Context()).IsGuest() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
