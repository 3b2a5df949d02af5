package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/toolyard/marketplace-backend/internal/accounts"
	"github.com/toolyard/marketplace-backend/internal/address"
	"github.com/toolyard/marketplace-backend/internal/cart"
	"github.com/toolyard/marketplace-backend/internal/payments"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/eventbus"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/redis"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Session is one buyer's pass through the two checkout steps.
type Session struct {
	ID                    string               `json:"id"`
	Step                  enums.CheckoutStep   `json:"step"`
	PrincipalKey          string               `json:"-"`
	UserID                *uuid.UUID           `json:"user_id,omitempty"`
	GuestID               string               `json:"guest_id,omitempty"`
	CartID                string               `json:"cart_id"`
	GuestEmail            string               `json:"guest_email,omitempty"`
	Shipping              *types.PostalAddress `json:"shipping,omitempty"`
	Billing               *types.PostalAddress `json:"billing,omitempty"`
	BillingSameAsShipping bool                 `json:"billing_same_as_shipping"`
	SaveAddress           bool                 `json:"save_address"`
	CreateAccount         bool                 `json:"create_account"`
	AccountID             *uuid.UUID           `json:"account_id,omitempty"`
	AccountError          string               `json:"account_error,omitempty"`
	GatewayIntentID       string               `json:"gateway_intent_id,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// storedSession keeps the principal key out of API responses but in Redis.
type storedSession struct {
	Session
	PrincipalKey string `json:"principal_key"`
}

// ShippingInput is the shipping step form.
type ShippingInput struct {
	Email                 string               `json:"email"`
	Shipping              types.PostalAddress  `json:"shipping"`
	Billing               *types.PostalAddress `json:"billing,omitempty"`
	BillingSameAsShipping bool                 `json:"billing_same_as_shipping"`
	SaveAddress           bool                 `json:"save_address"`
	CreateAccount         bool                 `json:"create_account"`
	Password              string               `json:"password,omitempty"`
}

// ShippingResult is the session after the shipping step plus the account created along the way, if any.
type ShippingResult struct {
	Session *Session          `json:"session"`
	Account *accounts.Session `json:"account,omitempty"`
}

type sessionStore interface {
	redis.KV
	CheckoutSessionKey(sessionID string) string
}

type cartReader interface {
	Get(ctx context.Context, principal types.Principal) (*cart.Cart, error)
}

type defaultsReader interface {
	Defaults(ctx context.Context, ownerID uuid.UUID) (address.Defaults, error)
}

type paymentOrchestrator interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentResult, error)
	SubmitPayment(ctx context.Context, in SubmitPaymentInput) (*ConfirmResult, error)
	Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error)
}

// FlowParams wires the checkout flow controller.
type FlowParams struct {
	Sessions     sessionStore
	Carts        cartReader
	Addresses    defaultsReader
	Accounts     accounts.Service
	Orchestrator paymentOrchestrator
	Events       eventbus.Publisher
	Logger       *logger.Logger
	TaxRate      decimal.Decimal
	Currency     string
	SessionTTL   time.Duration
}

// Flow runs the shipping → payment checkout steps.
type Flow struct {
	sessions     sessionStore
	carts        cartReader
	addresses    defaultsReader
	accounts     accounts.Service
	orchestrator paymentOrchestrator
	events       eventbus.Publisher
	logg         *logger.Logger
	taxRate      decimal.Decimal
	currency     string
	ttl          time.Duration
	now          func() time.Time
}

func NewFlow(params FlowParams) (*Flow, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Addresses == nil {
		return nil, fmt.Errorf("address service required")
	}
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.SessionTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Flow{
		sessions:     params.Sessions,
		carts:        params.Carts,
		addresses:    params.Addresses,
		accounts:     params.Accounts,
		orchestrator: params.Orchestrator,
		events:       params.Events,
		logg:         params.Logger,
		taxRate:      params.TaxRate,
		currency:     currency,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Begin opens a session on the shipping step. Signed-in buyers get their saved addresses pre-filled.
func (f *Flow) Begin(ctx context.Context, principal types.Principal) (*Session, error) {
	if principal.Key() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest device id is required")
	}
	c, err := f.carts.Get(ctx, principal)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty").
			WithDetails(map[string]string{"redirect": "/cart"})
	}

	now := f.now().UTC()
	session := &Session{
		ID:                    uuid.NewString(),
		Step:                  enums.CheckoutStepShipping,
		PrincipalKey:          principal.Key(),
		CartID:                c.ID,
		GuestEmail:            strings.ToLower(strings.TrimSpace(principal.GuestEmail)),
		BillingSameAsShipping: true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if principal.IsGuest() {
		session.GuestID = strings.TrimSpace(principal.GuestID)
	} else {
		id := *principal.UserID
		session.UserID = &id
		session.GuestEmail = ""
		if err := f.prefill(ctx, session, id); err != nil {
			return nil, err
		}
	}

	ctx = f.logg.WithCheckoutSession(ctx, session.ID)
	if err := f.save(ctx, session); err != nil {
		return nil, err
	}
	f.logg.Info(ctx, "checkout started")
	return session, nil
}

func (f *Flow) prefill(ctx context.Context, session *Session, ownerID uuid.UUID) error {
	defaults, err := f.addresses.Defaults(ctx, ownerID)
	if err != nil {
		return err
	}
	if defaults.Shipping != nil {
		shipping := defaults.Shipping.Postal()
		session.Shipping = &shipping
	}
	if defaults.Billing != nil {
		billing := defaults.Billing.Postal()
		session.Billing = &billing
		session.BillingSameAsShipping = session.Shipping != nil && address.Equal(billing, *session.Shipping)
	}
	return nil
}

// Get returns the caller's session.
func (f *Flow) Get(ctx context.Context, principal types.Principal, sessionID string) (*Session, error) {
	return f.load(ctx, principal, sessionID)
}

// SubmitShipping validates the shipping step and moves the session to payment.
func (f *Flow) SubmitShipping(ctx context.Context, principal types.Principal, sessionID string, in ShippingInput) (*ShippingResult, error) {
	session, err := f.load(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = f.logg.WithCheckoutSession(ctx, session.ID)

	shipping := in.Shipping
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		email = strings.ToLower(shipping.EmailOrEmpty())
	}
	if email != "" && shipping.EmailOrEmpty() == "" {
		shipping.Email = &email
	}

	billingDiffers := !in.BillingSameAsShipping
	if err := address.ValidateCheckoutAddresses(shipping, in.Billing, billingDiffers).AsError(); err != nil {
		return nil, err
	}

	session.Shipping = &shipping
	session.BillingSameAsShipping = !billingDiffers
	session.Billing = nil
	if billingDiffers {
		billing := *in.Billing
		session.Billing = &billing
	}
	session.SaveAddress = in.SaveAddress && !principal.IsGuest()
	session.CreateAccount = in.CreateAccount && principal.IsGuest()
	if principal.IsGuest() {
		session.GuestEmail = email
	}
	session.Step = enums.CheckoutStepPayment

	result := &ShippingResult{Session: session}
	if session.CreateAccount && session.AccountID == nil {
		result.Account = f.createAccount(ctx, session, in.Password)
	}

	if err := f.save(ctx, session); err != nil {
		return nil, err
	}
	return result, nil
}

// createAccount never fails the shipping step; problems are recorded on the session.
func (f *Flow) createAccount(ctx context.Context, session *Session, password string) *accounts.Session {
	session.AccountError = ""
	if f.accounts == nil {
		session.AccountError = "account creation is unavailable"
		return nil
	}
	created, err := f.accounts.CreateDuringCheckout(ctx, accounts.SignupRequest{
		Email:     session.GuestEmail,
		Password:  password,
		FirstName: session.Shipping.FirstName,
		LastName:  session.Shipping.LastName,
	})
	if err != nil {
		session.AccountError = "account could not be created"
		if appErr := pkgerrors.As(err); appErr != nil {
			session.AccountError = appErr.Message()
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) && f.events != nil {
			if pubErr := f.events.Publish(ctx, eventbus.SignInRequested{SessionID: session.ID, Email: session.GuestEmail}); pubErr != nil {
				f.logg.Error(ctx, "sign-in listeners failed", pubErr)
			}
		}
		f.logg.Warn(f.logg.WithField(ctx, "account_error", session.AccountError), "checkout account creation failed")
		return nil
	}
	id := created.User.ID
	session.AccountID = &id
	f.logg.Info(f.logg.WithUserID(ctx, id.String()), "account created during checkout")
	return created
}

// Back returns a payment-step session to shipping. The open intent is kept for reuse.
func (f *Flow) Back(ctx context.Context, principal types.Principal, sessionID string) (*Session, error) {
	session, err := f.load(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != enums.CheckoutStepPayment {
		return nil, stepError(session.Step, "already on the shipping step")
	}
	session.Step = enums.CheckoutStepShipping
	if err := f.save(f.logg.WithCheckoutSession(ctx, session.ID), session); err != nil {
		return nil, err
	}
	return session, nil
}

// CreatePaymentIntent prices the current cart and opens (or reuses) the payment intent for it.
func (f *Flow) CreatePaymentIntent(ctx context.Context, principal types.Principal, sessionID string, clientTotal *decimal.Decimal) (*IntentResult, error) {
	session, err := f.load(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = f.logg.WithCheckoutSession(ctx, session.ID)
	if session.Step != enums.CheckoutStepPayment {
		return nil, stepError(session.Step, "complete the shipping step first")
	}
	snapshot, err := f.snapshot(ctx, principal)
	if err != nil {
		return nil, err
	}

	result, err := f.orchestrator.CreateIntent(ctx, CreateIntentInput{
		Snapshot:    snapshot,
		Principal:   session.payer(principal),
		ClientTotal: clientTotal,
		Shipping:    session.Shipping,
		Billing:     session.billing(),
	})
	if err != nil {
		return nil, err
	}
	session.CartID = snapshot.CartID
	session.GatewayIntentID = result.GatewayIntentID
	if err := f.save(ctx, session); err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitPayment charges the payment method against the session's intent.
func (f *Flow) SubmitPayment(ctx context.Context, principal types.Principal, sessionID string, method payments.PaymentMethod) (*ConfirmResult, error) {
	session, err := f.paymentSession(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = f.logg.WithCheckoutSession(ctx, session.ID)
	// An emptied cart yields an empty snapshot, which never matches the frozen fingerprint.
	current, err := f.snapshot(ctx, principal)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		return nil, err
	}

	result, err := f.orchestrator.SubmitPayment(ctx, SubmitPaymentInput{
		GatewayIntentID: session.GatewayIntentID,
		Method:          method,
		CurrentSnapshot: &current,
		Confirm:         session.confirmInput(principal, session.GatewayIntentID),
	})
	if err != nil {
		return nil, err
	}
	f.finish(ctx, session)
	return result, nil
}

// ConfirmPayment records the order for an intent the buyer already paid on the client.
func (f *Flow) ConfirmPayment(ctx context.Context, principal types.Principal, sessionID, gatewayIntentID string) (*ConfirmResult, error) {
	session, err := f.paymentSession(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = f.logg.WithCheckoutSession(ctx, session.ID)
	intentID := strings.TrimSpace(gatewayIntentID)
	if intentID == "" {
		intentID = session.GatewayIntentID
	}
	if intentID != session.GatewayIntentID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment does not belong to this checkout")
	}

	result, err := f.orchestrator.Confirm(ctx, session.confirmInput(principal, intentID))
	if err != nil {
		return nil, err
	}
	f.finish(ctx, session)
	return result, nil
}

func (f *Flow) paymentSession(ctx context.Context, principal types.Principal, sessionID string) (*Session, error) {
	session, err := f.load(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != enums.CheckoutStepPayment {
		return nil, stepError(session.Step, "complete the shipping step first")
	}
	if session.GatewayIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not ready yet")
	}
	return session, nil
}

func (f *Flow) snapshot(ctx context.Context, principal types.Principal) (CartSnapshot, error) {
	c, err := f.carts.Get(ctx, principal)
	if err != nil {
		return CartSnapshot{}, err
	}
	if c.IsEmpty() {
		return CartSnapshot{}, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty").
			WithDetails(map[string]string{"redirect": "/cart"})
	}
	return NewSnapshot(c.ID, c.Lines(), f.taxRate, f.currency)
}

// finish drops a completed session. The order already exists, so failures are only logged.
func (f *Flow) finish(ctx context.Context, session *Session) {
	if err := f.sessions.Del(context.WithoutCancel(ctx), f.sessions.CheckoutSessionKey(session.ID)); err != nil {
		f.logg.Warn(ctx, fmt.Sprintf("delete checkout session: %v", err))
	}
}

func (f *Flow) load(ctx context.Context, principal types.Principal, sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}
	raw, err := f.sessions.Get(ctx, f.sessions.CheckoutSessionKey(sessionID))
	if redis.IsNil(err) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session expired or not found").
			WithDetails(map[string]string{"redirect": "/cart"})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	var stored storedSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout session")
	}
	if stored.PrincipalKey == "" || stored.PrincipalKey != principal.Key() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to someone else")
	}
	session := stored.Session
	session.PrincipalKey = stored.PrincipalKey
	return &session, nil
}

func (f *Flow) save(ctx context.Context, session *Session) error {
	session.UpdatedAt = f.now().UTC()
	payload, err := json.Marshal(storedSession{Session: *session, PrincipalKey: session.PrincipalKey})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout session")
	}
	if err := f.sessions.Set(ctx, f.sessions.CheckoutSessionKey(session.ID), payload, f.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	return nil
}

// payer is the principal the orchestrator charges; guests carry the session's contact email.
func (s *Session) payer(principal types.Principal) types.Principal {
	if principal.IsGuest() && s.GuestEmail != "" {
		principal.GuestEmail = s.GuestEmail
	}
	return principal
}

func (s *Session) billing() *types.PostalAddress {
	if s.BillingSameAsShipping {
		return nil
	}
	return s.Billing
}

func (s *Session) confirmInput(principal types.Principal, gatewayIntentID string) ConfirmInput {
	payer := s.payer(principal)
	return ConfirmInput{
		GatewayIntentID: gatewayIntentID,
		CartID:          s.CartID,
		Principal:       payer,
		IsGuest:         payer.IsGuest(),
		GuestEmail:      payer.GuestEmail,
		Shipping:        s.Shipping,
		Billing:         s.billing(),
		SaveAddress:     s.SaveAddress,
	}
}

func stepError(step enums.CheckoutStep, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]string{"step": step.String()})
}
