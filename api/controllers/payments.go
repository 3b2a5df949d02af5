package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/toolyard/marketplace-backend/api/middleware"
	"github.com/toolyard/marketplace-backend/api/responses"
	"github.com/toolyard/marketplace-backend/api/validators"
	"github.com/toolyard/marketplace-backend/internal/checkout"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// The single-call payment endpoints keep the camelCase contract used by the storefront client.

type contractCartItem struct {
	ListingID string          `json:"listingId" validate:"required"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	ImageURL  *string         `json:"imageUrl,omitempty"`
}

type createPaymentIntentRequest struct {
	CartID          string             `json:"cartId"`
	UserID          string             `json:"userId,omitempty" validate:"omitempty,uuid"`
	GuestCartItems  []contractCartItem `json:"guestCartItems,omitempty" validate:"omitempty,dive"`
	GuestTotal      *decimal.Decimal   `json:"guestTotal,omitempty"`
	IsGuestCheckout bool               `json:"isGuestCheckout"`
	GuestEmail      string             `json:"guestEmail,omitempty" validate:"omitempty,email"`
}

type createPaymentIntentResponse struct {
	ClientSecret    string          `json:"clientSecret"`
	PaymentIntentID string          `json:"paymentIntentId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type confirmPaymentRequest struct {
	PaymentIntentID string               `json:"paymentIntentId" validate:"required"`
	CartID          string               `json:"cartId"`
	IsGuestCheckout bool                 `json:"isGuestCheckout"`
	GuestEmail      string               `json:"guestEmail,omitempty" validate:"omitempty,email"`
	CartItems       []contractCartItem   `json:"cartItems,omitempty" validate:"omitempty,dive"`
	CartTotal       *decimal.Decimal     `json:"cartTotal,omitempty"`
	ShippingAddress *types.PostalAddress `json:"shippingAddress,omitempty"`
	BillingAddress  *types.PostalAddress `json:"billingAddress,omitempty"`
	SaveAddress     bool                 `json:"saveAddress"`
}

type confirmPaymentResponse struct {
	OrderID          uuid.UUID `json:"orderId"`
	AlreadyConfirmed bool      `json:"alreadyConfirmed"`
}

// CreatePaymentIntent opens a payment intent for the caller's cart and returns its client secret.
func CreatePaymentIntent(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body createPaymentIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		principal := middleware.PrincipalFromContext(r.Context())
		if err := checkClaimedUser(principal, body.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := flow.DirectIntent(r.Context(), principal, checkout.DirectIntentRequest{
			CartID:     strings.TrimSpace(body.CartID),
			IsGuest:    body.IsGuestCheckout,
			GuestEmail: body.GuestEmail,
			GuestItems: contractLines(body.GuestCartItems),
			GuestTotal: body.GuestTotal,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, createPaymentIntentResponse{
			ClientSecret:    result.ClientSecret,
			PaymentIntentID: result.GatewayIntentID,
			Amount:          result.Amount,
			Currency:        result.Currency,
		})
	}
}

// ConfirmPayment records the order for a paid intent and returns its id.
func ConfirmPayment(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if flow == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		var body confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := flow.DirectConfirm(r.Context(), middleware.PrincipalFromContext(r.Context()), checkout.DirectConfirmRequest{
			GatewayIntentID: body.PaymentIntentID,
			CartID:          strings.TrimSpace(body.CartID),
			IsGuest:         body.IsGuestCheckout,
			GuestEmail:      body.GuestEmail,
			GuestItems:      contractLines(body.CartItems),
			CartTotal:       body.CartTotal,
			Shipping:        body.ShippingAddress,
			Billing:         body.BillingAddress,
			SaveAddress:     body.SaveAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmPaymentResponse{
			OrderID:          result.OrderID,
			AlreadyConfirmed: result.AlreadyConfirmed,
		})
	}
}

// checkClaimedUser rejects a body userId that is not the authenticated caller.
func checkClaimedUser(principal types.Principal, claimed string) error {
	claimed = strings.TrimSpace(claimed)
	if claimed == "" {
		return nil
	}
	if principal.IsGuest() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out with an account")
	}
	if !strings.EqualFold(principal.UserID.String(), claimed) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "user id does not match the signed-in account")
	}
	return nil
}

func contractLines(items []contractCartItem) []types.CartLine {
	if len(items) == 0 {
		return nil
	}
	lines := make([]types.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, types.CartLine{
			ListingID: strings.TrimSpace(item.ListingID),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return lines
}
