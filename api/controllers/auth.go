package controllers

import (
	"net/http"

	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/api/validators"
	"github.com/toolyard/marketplace-backend/internal/accounts"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
)

// AuthLogin exchanges email and password for an access token.
func AuthLogin(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body accounts.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
