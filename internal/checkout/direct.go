package checkout

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

const maxClientLines = 100

// DirectIntentRequest is the single-call intent contract used by clients that keep their own
// checkout state. A stored cart wins over guest items; guest items are priced only when the
// device has no stored cart. Client totals are informational.
type DirectIntentRequest struct {
	CartID     string
	IsGuest    bool
	GuestEmail string
	GuestItems []types.CartLine
	GuestTotal *decimal.Decimal
	Shipping   *types.PostalAddress
	Billing    *types.PostalAddress
}

// DirectConfirmRequest confirms a paid intent without a stored checkout session.
type DirectConfirmRequest struct {
	GatewayIntentID string
	CartID          string
	IsGuest         bool
	GuestEmail      string
	GuestItems      []types.CartLine
	CartTotal       *decimal.Decimal
	Shipping        *types.PostalAddress
	Billing         *types.PostalAddress
	SaveAddress     bool
}

// DirectIntent opens (or reuses) a payment intent for the caller's current cart.
func (f *Flow) DirectIntent(ctx context.Context, principal types.Principal, req DirectIntentRequest) (*IntentResult, error) {
	payer, err := directPayer(principal, req.IsGuest, req.GuestEmail)
	if err != nil {
		return nil, err
	}
	snapshot, err := f.snapshot(ctx, principal)
	switch {
	case err == nil:
		if req.CartID != "" && req.CartID != snapshot.CartID {
			f.logg.Warn(f.logg.WithField(ctx, "cart_id", req.CartID), "client cart id differs from the stored cart")
		}
		if len(req.GuestItems) > 0 && fingerprintLines(req.GuestItems) != snapshot.Fingerprint() {
			f.logg.Warn(ctx, "client guest items differ from the stored cart; charging the stored cart")
		}
	case payer.IsGuest() && len(req.GuestItems) > 0 && pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		snapshot, err = f.clientSnapshot(payer, req.GuestItems)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return f.orchestrator.CreateIntent(ctx, CreateIntentInput{
		Snapshot:    snapshot,
		Principal:   payer,
		ClientTotal: req.GuestTotal,
		Shipping:    req.Shipping,
		Billing:     req.Billing,
	})
}

// DirectConfirm records the order for a paid intent. The frozen snapshot on the attempt is
// authoritative; client totals are only compared.
func (f *Flow) DirectConfirm(ctx context.Context, principal types.Principal, req DirectConfirmRequest) (*ConfirmResult, error) {
	intentID := strings.TrimSpace(req.GatewayIntentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	payer, err := directPayer(principal, req.IsGuest, req.GuestEmail)
	if err != nil {
		return nil, err
	}
	if req.CartTotal != nil && len(req.GuestItems) > 0 {
		if priced, perr := NewSnapshot("client", req.GuestItems, f.taxRate, f.currency); perr == nil && !priced.Total.Equal(*req.CartTotal) && !priced.Subtotal.Equal(*req.CartTotal) {
			f.logg.Warn(f.logg.WithField(ctx, "client_total", req.CartTotal.StringFixed(2)), "client cart total does not match its items")
		}
	}
	return f.orchestrator.Confirm(ctx, ConfirmInput{
		GatewayIntentID: intentID,
		CartID:          req.CartID,
		Principal:       payer,
		IsGuest:         payer.IsGuest(),
		GuestEmail:      payer.GuestEmail,
		GuestItems:      req.GuestItems,
		Shipping:        req.Shipping,
		Billing:         req.Billing,
		SaveAddress:     req.SaveAddress && !payer.IsGuest(),
	})
}

// clientSnapshot prices a guest cart that only exists on the device. Totals are recomputed here;
// whatever total the client sent is compared later and never charged.
func (f *Flow) clientSnapshot(payer types.Principal, lines []types.CartLine) (CartSnapshot, error) {
	if len(lines) > maxClientLines {
		return CartSnapshot{}, pkgerrors.Errorf(pkgerrors.CodeValidation, "a cart holds at most %d lines", maxClientLines)
	}
	return NewSnapshot("guest:"+payer.GuestID, lines, f.taxRate, f.currency)
}

// directPayer reconciles the isGuestCheckout flag with who is actually calling. A signed-in
// caller is always charged as themselves.
func directPayer(principal types.Principal, isGuest bool, guestEmail string) (types.Principal, error) {
	if !principal.IsGuest() {
		return principal, nil
	}
	if !isGuest {
		return principal, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in or check out as a guest")
	}
	if email := strings.ToLower(strings.TrimSpace(guestEmail)); email != "" {
		principal.GuestEmail = email
	}
	if principal.GuestEmail == "" {
		return principal, pkgerrors.New(pkgerrors.CodeValidation, "guest email is required").
			WithDetails(map[string]string{"guest_email": "is required"})
	}
	return principal, nil
}
