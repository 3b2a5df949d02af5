package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toolyard/marketplace-backend/api/middleware"
	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/api/validators"
	"github.com/toolyard/marketplace-backend/internal/orders"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/pagination"
)

// OrderDetail returns one order for the confirmation page.
func OrderDetail(reader orders.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders unavailable"))
			return
		}
		orderID := chi.URLParam(r, "orderId")
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}

		view, err := reader.LoadOrder(r.Context(), orderID, middleware.PrincipalFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// OrderList returns the signed-in buyer's order history, newest first.
func OrderList(reader orders.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := reader.ListOrders(r.Context(), middleware.PrincipalFromContext(r.Context()), pagination.Params{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor", 256),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
