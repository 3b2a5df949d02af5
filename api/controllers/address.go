package controllers

import (
	"net/http"

	"github.com/toolyard/marketplace-backend/api/middleware"
	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/internal/address"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

type addressDefaultsResponse struct {
	Shipping *types.PostalAddress `json:"shipping"`
	Billing  *types.PostalAddress `json:"billing"`
}

// AddressDefaults returns the signed-in buyer's default shipping and billing addresses.
func AddressDefaults(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		principal := middleware.PrincipalFromContext(r.Context())
		if principal.IsGuest() {
			responses.WriteSuccess(w, addressDefaultsResponse{})
			return
		}

		defaults, err := svc.Defaults(r.Context(), *principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var out addressDefaultsResponse
		if defaults.Shipping != nil {
			shipping := defaults.Shipping.Postal()
			out.Shipping = &shipping
		}
		if defaults.Billing != nil {
			billing := defaults.Billing.Postal()
			out.Billing = &billing
		}
		responses.WriteSuccess(w, out)
	}
}
