package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/toolyard/marketplace-backend/api/middleware"
	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/api/validators"
	"github.com/toolyard/marketplace-backend/internal/recentlyviewed"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
)

// ListingViewed records that the caller opened a listing page.
func ListingViewed(svc *recentlyviewed.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recently viewed unavailable"))
			return
		}
		listingID := strings.TrimSpace(chi.URLParam(r, "listingId"))
		if listingID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required"))
			return
		}
		if err := svc.Record(r.Context(), middleware.PrincipalFromContext(r.Context()), listingID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RecentlyViewed lists the caller's recently viewed listings, minus ?current=.
func RecentlyViewed(svc *recentlyviewed.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recently viewed unavailable"))
			return
		}
		ids, err := svc.List(r.Context(), middleware.PrincipalFromContext(r.Context()), validators.QueryString(r, "current", 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		responses.WriteSuccess(w, map[string][]string{"listing_ids": ids})
	}
}
