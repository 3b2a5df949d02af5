package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/toolyard/marketplace-backend/api/middleware"
	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/api/validators"
	"github.com/toolyard/marketplace-backend/internal/checkout"
	"github.com/toolyard/marketplace-backend/internal/payments"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// CheckoutFlow is the session-based checkout surface.
type CheckoutFlow interface {
	Begin(ctx context.Context, principal types.Principal) (*checkout.Session, error)
	Get(ctx context.Context, principal types.Principal, sessionID string) (*checkout.Session, error)
	SubmitShipping(ctx context.Context, principal types.Principal, sessionID string, in checkout.ShippingInput) (*checkout.ShippingResult, error)
	Back(ctx context.Context, principal types.Principal, sessionID string) (*checkout.Session, error)
	CreatePaymentIntent(ctx context.Context, principal types.Principal, sessionID string, clientTotal *decimal.Decimal) (*checkout.IntentResult, error)
	SubmitPayment(ctx context.Context, principal types.Principal, sessionID string, method payments.PaymentMethod) (*checkout.ConfirmResult, error)
	ConfirmPayment(ctx context.Context, principal types.Principal, sessionID, gatewayIntentID string) (*checkout.ConfirmResult, error)
	DirectIntent(ctx context.Context, principal types.Principal, req checkout.DirectIntentRequest) (*checkout.IntentResult, error)
	DirectConfirm(ctx context.Context, principal types.Principal, req checkout.DirectConfirmRequest) (*checkout.ConfirmResult, error)
}

type walletProber interface {
	WalletOffer(ctx context.Context, probe payments.WalletProbe) bool
}

type checkoutIntentRequest struct {
	ClientTotal *decimal.Decimal `json:"client_total,omitempty"`
}

type checkoutConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func CheckoutBegin(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		session, err := flow.Begin(r.Context(), middleware.PrincipalFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

func CheckoutGet(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		session, err := flow.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "sessionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// CheckoutShipping submits the shipping step. Field errors come back keyed shipping.<field> and billing.<field>.
func CheckoutShipping(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body checkout.ShippingInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := flow.SubmitShipping(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "sessionId"), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CheckoutBack(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		session, err := flow.Back(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "sessionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// CheckoutIntent opens the payment intent for the session's cart.
func CheckoutIntent(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body checkoutIntentRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := flow.CreatePaymentIntent(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "sessionId"), body.ClientTotal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutPay charges a tokenized card or wallet and records the order.
func CheckoutPay(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body payments.PaymentMethod
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := flow.SubmitPayment(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "sessionId"), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutConfirm records the order for an intent the client already confirmed with the gateway.
func CheckoutConfirm(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body checkoutConfirmRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := flow.ConfirmPayment(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "sessionId"), body.PaymentIntentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutWalletOffer tells the client whether to render the wallet button.
func CheckoutWalletOffer(prober walletProber, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if prober == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body payments.WalletProbe
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"offer_wallet": prober.WalletOffer(r.Context(), body)})
	}
}
