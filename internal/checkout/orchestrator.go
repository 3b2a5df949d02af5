package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/toolyard/marketplace-backend/internal/address"
	"github.com/toolyard/marketplace-backend/internal/orders"
	"github.com/toolyard/marketplace-backend/internal/payments"
	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/eventbus"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/metrics"
	"github.com/toolyard/marketplace-backend/pkg/money"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

const confirmLockScope = "confirm"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartEmptier interface {
	EmptyCartBestEffort(ctx context.Context, principal types.Principal)
}

type addressSaver interface {
	SaveFromCheckout(ctx context.Context, ownerID uuid.UUID, addr types.PostalAddress, addressType enums.AddressType) (models.Address, error)
}

type confirmLocker interface {
	AcquireLock(ctx context.Context, scope, id string, ttl time.Duration) (func(context.Context), bool, error)
}

// OrchestratorParams wires the orchestrator's collaborators.
type OrchestratorParams struct {
	Attempts       *AttemptRepository
	Orders         orders.Repository
	Tx             txRunner
	Gateway        payments.Gateway
	Carts          cartEmptier
	Addresses      addressSaver
	Locker         confirmLocker
	Events         eventbus.Publisher
	Metrics        *metrics.CheckoutMetrics
	Logger         *logger.Logger
	ConfirmLockTTL time.Duration
}

// Orchestrator drives a payment attempt from intent creation to a recorded order.
type Orchestrator struct {
	attempts  *AttemptRepository
	orders    orders.Repository
	tx        txRunner
	gateway   payments.Gateway
	carts     cartEmptier
	addresses addressSaver
	locker    confirmLocker
	events    eventbus.Publisher
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("confirmation locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	lockTTL := params.ConfirmLockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Orchestrator{
		attempts:  params.Attempts,
		orders:    params.Orders,
		tx:        params.Tx,
		gateway:   params.Gateway,
		carts:     params.Carts,
		addresses: params.Addresses,
		locker:    params.Locker,
		events:    params.Events,
		metrics:   params.Metrics,
		logg:      params.Logger,
		lockTTL:   lockTTL,
		now:       time.Now,
	}, nil
}

// CreateIntentInput describes the cart to charge. ClientTotal is what the browser displayed; it is only compared.
type CreateIntentInput struct {
	Snapshot    CartSnapshot
	Principal   types.Principal
	ClientTotal *decimal.Decimal
	Shipping    *types.PostalAddress
	Billing     *types.PostalAddress
}

// IntentResult is what the payment UI needs to collect a card or wallet payment.
type IntentResult struct {
	AttemptID       uuid.UUID       `json:"attempt_id"`
	GatewayIntentID string          `json:"gateway_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reused          bool            `json:"reused"`
	Synthetic       bool            `json:"synthetic"`
}

// CreateIntent prices the snapshot and opens a gateway intent for it. A ready attempt for the same
// cart contents is handed back instead of opening a second intent.
func (o *Orchestrator) CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentResult, error) {
	snapshot := in.Snapshot
	if snapshot.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty").
			WithDetails(map[string]string{"redirect": "/cart"})
	}
	ownerID, guestEmail, err := payerOf(in.Principal)
	if err != nil {
		return nil, err
	}
	if in.ClientTotal != nil && !in.ClientTotal.Equal(snapshot.Total) {
		o.logg.Warn(o.logg.WithFields(ctx, map[string]any{
			"cart_id":      snapshot.CartID,
			"client_total": in.ClientTotal.String(),
			"cart_total":   snapshot.Total.String(),
		}), "client total differs from cart total; charging cart total")
	}
	fingerprint := snapshot.Fingerprint()

	existing, err := o.attempts.FindReusable(ctx, snapshot.CartID, fingerprint)
	switch {
	case err == nil && sameCustomer(existing, ownerID, guestEmail):
		if in.Shipping != nil {
			o.refreshAddresses(ctx, existing, in.Shipping, in.Billing)
		}
		o.metrics.IncIntent("reused")
		return intentResult(existing, true), nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempts")
	}

	amountCents, err := money.ToMinorUnits(snapshot.Total)
	if err != nil || amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart total must be positive")
	}

	attempt := &models.PaymentIntent{
		ID:              uuid.New(),
		CartID:          snapshot.CartID,
		OwnerID:         ownerID,
		GuestEmail:      guestEmail,
		GuestDeviceID:   guestDevice(in.Principal),
		Subtotal:        snapshot.Subtotal,
		Tax:             snapshot.Tax,
		Amount:          snapshot.Total,
		AmountCents:     amountCents,
		Currency:        snapshot.Currency,
		State:           enums.AttemptStateCreating,
		CartFingerprint: fingerprint,
		Snapshot:        snapshot.Lines,
		ShippingAddress: in.Shipping,
		BillingAddress:  billingOrShipping(in.Billing, in.Shipping),
	}

	metadata := map[string]string{
		"attempt_id":       attempt.ID.String(),
		"cart_id":          snapshot.CartID,
		"cart_fingerprint": fingerprint,
	}
	receipt := ""
	if ownerID != nil {
		metadata["owner_id"] = ownerID.String()
		receipt = strings.ToLower(strings.TrimSpace(in.Principal.Email))
	} else {
		metadata["guest_email"] = *guestEmail
		receipt = *guestEmail
	}

	intent, err := o.gateway.CreatePaymentIntent(ctx, payments.CreateIntentRequest{
		AmountCents:    amountCents,
		Currency:       snapshot.Currency,
		ReceiptEmail:   receipt,
		Metadata:       metadata,
		IdempotencyKey: "intent:" + attempt.ID.String(),
	})
	if err != nil {
		o.metrics.IncIntent("error")
		o.logg.Error(o.logg.WithField(ctx, "cart_id", snapshot.CartID), "create payment intent failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment service unavailable, please try again")
	}

	attempt.GatewayIntentID = intent.ID
	attempt.ClientSecret = intent.ClientSecret
	attempt.Synthetic = intent.Synthetic
	attempt.State = enums.AttemptStateReady
	if err := o.attempts.Create(ctx, attempt); err != nil {
		o.metrics.IncIntent("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
	}

	o.metrics.IncIntent("created")
	o.logg.Info(o.logg.WithIntentID(ctx, intent.ID), "payment intent created")
	return intentResult(attempt, false), nil
}

// WalletOffer reports whether a wallet payment button should be shown.
func (o *Orchestrator) WalletOffer(ctx context.Context, probe payments.WalletProbe) bool {
	return o.gateway.WalletSupport(ctx, probe)
}

// SubmitPaymentInput confirms a ready attempt with a tokenized payment method.
type SubmitPaymentInput struct {
	GatewayIntentID string
	Method          payments.PaymentMethod
	// CurrentSnapshot is the cart as it is now; a changed cart needs a new intent.
	CurrentSnapshot *CartSnapshot
	Confirm         ConfirmInput
}

// SubmitPayment charges the payment method and, on success, records the order.
func (o *Orchestrator) SubmitPayment(ctx context.Context, in SubmitPaymentInput) (*ConfirmResult, error) {
	ctx = o.logg.WithIntentID(ctx, in.GatewayIntentID)
	if !in.Method.Kind.IsValid() || strings.TrimSpace(in.Method.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	attempt, err := o.loadAttempt(ctx, in.GatewayIntentID, in.Confirm.Principal, in.Confirm.GuestEmail)
	if err != nil {
		return nil, err
	}
	if attempt.OrderID != nil {
		return &ConfirmResult{OrderID: *attempt.OrderID, Synthetic: attempt.Synthetic, AlreadyConfirmed: true}, nil
	}
	if attempt.State != enums.AttemptStateReady {
		return nil, stateError(attempt.State, "payment is not ready to be submitted")
	}
	if in.CurrentSnapshot != nil && in.CurrentSnapshot.Fingerprint() != attempt.CartFingerprint {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "your cart changed; review the new total before paying").
			WithDetails(map[string]string{"reason": "cart_changed"})
	}
	if err := validateConfirmAddresses(in.Confirm); err != nil {
		return nil, err
	}

	release, ok, err := o.locker.AcquireLock(ctx, confirmLockScope, attempt.GatewayIntentID, o.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire confirmation lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment is already being processed")
	}
	defer release(context.WithoutCancel(ctx))

	if err := o.attempts.Transition(ctx, attempt.ID, enums.AttemptStateReady, enums.AttemptStateConfirming, nil); err != nil {
		return nil, o.transitionError(err)
	}

	start := o.now()
	intent, err := o.gateway.ConfirmPayment(ctx, attempt.GatewayIntentID, in.Method)
	o.metrics.ObserveGateway("submit_payment", o.now().Sub(start))
	if err != nil {
		if decline, ok := payments.AsDecline(err); ok {
			return nil, o.failAttempt(ctx, attempt, enums.AttemptStateConfirming, decline.Code, decline.Raw)
		}
		o.revertToReady(ctx, attempt)
		o.logg.Error(ctx, "confirm payment with gateway failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment service unavailable, please try again")
	}
	attempt.State = enums.AttemptStateConfirming
	return o.settleLocked(ctx, attempt, intent, in.Confirm)
}

// ConfirmInput is everything needed to turn a successful payment into an order.
type ConfirmInput struct {
	GatewayIntentID string
	CartID          string
	Principal       types.Principal
	IsGuest         bool
	GuestEmail      string
	// GuestItems is the client-held guest cart; the frozen snapshot always wins over it.
	GuestItems  []types.CartLine
	Shipping    *types.PostalAddress
	Billing     *types.PostalAddress
	SaveAddress bool
}

// ConfirmResult names the recorded order.
type ConfirmResult struct {
	OrderID          uuid.UUID `json:"order_id"`
	Synthetic        bool      `json:"synthetic"`
	AlreadyConfirmed bool      `json:"already_confirmed"`
}

// Confirm records the order for a gateway intent the buyer has already paid. Repeated calls for the
// same intent return the same order.
func (o *Orchestrator) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	ctx = o.logg.WithIntentID(ctx, in.GatewayIntentID)
	guestEmail := in.GuestEmail
	if guestEmail == "" {
		guestEmail = in.Principal.GuestEmail
	}
	attempt, err := o.loadAttempt(ctx, in.GatewayIntentID, in.Principal, guestEmail)
	if err != nil {
		return nil, err
	}
	if attempt.OrderID != nil {
		o.metrics.IncConfirmation("duplicate")
		return &ConfirmResult{OrderID: *attempt.OrderID, Synthetic: attempt.Synthetic, AlreadyConfirmed: true}, nil
	}
	if in.CartID != "" && in.CartID != attempt.CartID {
		o.logg.Warn(o.logg.WithField(ctx, "cart_id", in.CartID), "confirmation cart id differs from attempt cart id")
	}
	if len(in.GuestItems) > 0 && fingerprintLines(in.GuestItems) != attempt.CartFingerprint {
		o.logg.Warn(ctx, "guest items differ from the frozen snapshot; using the snapshot")
	}
	if err := validateConfirmAddresses(in); err != nil {
		return nil, err
	}

	release, ok, err := o.locker.AcquireLock(ctx, confirmLockScope, attempt.GatewayIntentID, o.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire confirmation lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "confirmation already in progress")
	}
	defer release(context.WithoutCancel(ctx))

	// Another request may have finished while this one waited for the lock.
	attempt, err = o.attempts.FindByGatewayIntentID(ctx, attempt.GatewayIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment attempt")
	}
	if attempt.OrderID != nil {
		o.metrics.IncConfirmation("duplicate")
		return &ConfirmResult{OrderID: *attempt.OrderID, Synthetic: attempt.Synthetic, AlreadyConfirmed: true}, nil
	}

	switch attempt.State {
	case enums.AttemptStateReady:
		if err := o.attempts.Transition(ctx, attempt.ID, enums.AttemptStateReady, enums.AttemptStateConfirming, nil); err != nil {
			return nil, o.transitionError(err)
		}
		attempt.State = enums.AttemptStateConfirming
	case enums.AttemptStateConfirming:
	default:
		return nil, stateError(attempt.State, "payment cannot be confirmed")
	}

	start := o.now()
	intent, err := o.gateway.RetrieveIntent(ctx, attempt.GatewayIntentID)
	o.metrics.ObserveGateway("verify_payment", o.now().Sub(start))
	if err != nil {
		o.revertToReady(ctx, attempt)
		o.logg.Error(ctx, "verify payment with gateway failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment service unavailable, please try again")
	}
	return o.settleLocked(ctx, attempt, intent, in)
}

// MarkFailed records a gateway-reported failure that arrived out of band.
func (o *Orchestrator) MarkFailed(ctx context.Context, gatewayIntentID, code, raw string) error {
	attempt, err := o.attempts.FindByGatewayIntentID(ctx, gatewayIntentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}
	if attempt.State.IsTerminal() {
		return nil
	}
	failErr := o.failAttempt(ctx, attempt, attempt.State, code, raw)
	if pkgerrors.IsCode(failErr, pkgerrors.CodePaymentFailed) {
		return nil
	}
	return failErr
}

// ConfirmFromGateway is the server-side path for a gateway success notification. It uses the
// addresses captured when the intent was created and does nothing when they are missing.
func (o *Orchestrator) ConfirmFromGateway(ctx context.Context, gatewayIntentID string) (*ConfirmResult, error) {
	attempt, err := o.attempts.FindByGatewayIntentID(ctx, gatewayIntentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}
	if attempt.OrderID != nil {
		return &ConfirmResult{OrderID: *attempt.OrderID, Synthetic: attempt.Synthetic, AlreadyConfirmed: true}, nil
	}
	if attempt.ShippingAddress == nil {
		o.logg.Warn(o.logg.WithIntentID(ctx, gatewayIntentID), "gateway reported success before the buyer confirmed; waiting for client confirmation")
		return nil, nil
	}
	principal := principalOf(attempt)
	return o.Confirm(ctx, ConfirmInput{
		GatewayIntentID: gatewayIntentID,
		CartID:          attempt.CartID,
		Principal:       principal,
		IsGuest:         principal.IsGuest(),
		GuestEmail:      principal.GuestEmail,
		Shipping:        attempt.ShippingAddress,
		Billing:         attempt.BillingAddress,
	})
}

// settleLocked acts on the gateway's verdict. The caller holds the confirmation lock and the attempt is confirming.
func (o *Orchestrator) settleLocked(ctx context.Context, attempt *models.PaymentIntent, intent payments.Intent, in ConfirmInput) (*ConfirmResult, error) {
	if awaitingPayment(intent) {
		o.revertToReady(ctx, attempt)
		o.metrics.IncConfirmation("awaiting_payment")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment has been submitted for this checkout yet").
			WithDetails(map[string]string{"reason": string(intent.Status)})
	}
	switch intent.Status {
	case enums.GatewayIntentStatusSucceeded:
	case enums.GatewayIntentStatusProcessing, enums.GatewayIntentStatusRequiresAction, enums.GatewayIntentStatusRequiresConfirmation:
		o.revertToReady(ctx, attempt)
		o.metrics.IncConfirmation("pending")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not completed yet").
			WithDetails(map[string]string{"reason": string(intent.Status)})
	default:
		return nil, o.failAttempt(ctx, attempt, enums.AttemptStateConfirming, intent.FailureCode, "gateway status "+string(intent.Status))
	}
	if intent.AmountCents != 0 && intent.AmountCents != attempt.AmountCents {
		o.logg.Warn(o.logg.WithFields(ctx, map[string]any{
			"gateway_amount": intent.AmountCents,
			"attempt_amount": attempt.AmountCents,
		}), "gateway amount differs from frozen amount")
	}

	shipping, billing, err := o.resolveAddresses(attempt, in)
	if err != nil {
		return nil, err
	}
	ownerID, guestEmail := attempt.OwnerID, attempt.GuestEmail
	order := &models.Order{
		ID:                   uuid.New(),
		OwnerID:              ownerID,
		GuestEmail:           guestEmail,
		GatewayIntentID:      attempt.GatewayIntentID,
		Items:                attempt.Snapshot,
		Subtotal:             attempt.Subtotal,
		Tax:                  attempt.Tax,
		TotalAmount:          attempt.Amount,
		Currency:             attempt.Currency,
		ShippingAddress:      shipping,
		BillingAddress:       billing,
		PaymentMethodSummary: intent.PaymentMethodSummary,
		Status:               enums.OrderStatusPaid,
		CreatedAt:            o.now().UTC(),
	}

	var recorded *models.Order
	err = o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		saved, _, err := o.orders.WithTx(tx).CreateOnce(ctx, order)
		if err != nil {
			return err
		}
		recorded = saved
		return o.attempts.WithTx(tx).Transition(ctx, attempt.ID, enums.AttemptStateConfirming, enums.AttemptStateSucceeded, map[string]any{
			"order_id": saved.ID,
		})
	})
	if err != nil {
		o.metrics.IncConfirmation("order_pending")
		o.logg.Error(ctx, "payment captured but order was not recorded", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeOrderPending, err, "payment received but the order could not be recorded")
	}

	o.afterOrder(context.WithoutCancel(ctx), attempt, recorded, in)
	o.metrics.IncConfirmation("succeeded")
	o.metrics.ObserveOrderTotal(recorded.TotalAmount.InexactFloat64())
	o.logg.Info(o.logg.WithField(ctx, "order_id", recorded.ID.String()), "order confirmed")
	return &ConfirmResult{OrderID: recorded.ID, Synthetic: attempt.Synthetic}, nil
}

// afterOrder runs the follow-ups to a recorded order. None of them can undo the order.
func (o *Orchestrator) afterOrder(ctx context.Context, attempt *models.PaymentIntent, order *models.Order, in ConfirmInput) {
	principal := in.Principal
	if principal.Key() == "" {
		principal = principalOf(attempt)
	}

	if in.SaveAddress && attempt.OwnerID != nil && o.addresses != nil {
		o.saveAddresses(ctx, *attempt.OwnerID, order.ShippingAddress, order.BillingAddress)
	}
	if principal.Key() != "" {
		o.carts.EmptyCartBestEffort(ctx, principal)
	}
	if o.events != nil {
		event := eventbus.OrderConfirmed{
			OrderID:         order.ID,
			GatewayIntentID: order.GatewayIntentID,
			OwnerID:         order.OwnerID,
			Total:           order.TotalAmount,
			Synthetic:       attempt.Synthetic,
		}
		if order.GuestEmail != nil {
			event.GuestEmail = *order.GuestEmail
		}
		if err := o.events.Publish(ctx, event); err != nil {
			o.logg.Error(ctx, "order confirmed listeners failed", err)
		}
	}
}

func (o *Orchestrator) saveAddresses(ctx context.Context, ownerID uuid.UUID, shipping, billing types.PostalAddress) {
	if address.Equal(shipping, billing) {
		if _, err := o.addresses.SaveFromCheckout(ctx, ownerID, shipping, enums.AddressTypeBoth); err != nil {
			o.logg.Error(ctx, "save checkout address failed", err)
		}
		return
	}
	if _, err := o.addresses.SaveFromCheckout(ctx, ownerID, shipping, enums.AddressTypeShipping); err != nil {
		o.logg.Error(ctx, "save shipping address failed", err)
	}
	if _, err := o.addresses.SaveFromCheckout(ctx, ownerID, billing, enums.AddressTypeBilling); err != nil {
		o.logg.Error(ctx, "save billing address failed", err)
	}
}

func (o *Orchestrator) resolveAddresses(attempt *models.PaymentIntent, in ConfirmInput) (types.PostalAddress, types.PostalAddress, error) {
	shipping := in.Shipping
	if shipping == nil {
		shipping = attempt.ShippingAddress
	}
	if shipping == nil {
		return types.PostalAddress{}, types.PostalAddress{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	billing := in.Billing
	if billing == nil && in.Shipping == nil {
		billing = attempt.BillingAddress
	}
	billing = billingOrShipping(billing, shipping)
	return *shipping, *billing, nil
}

func (o *Orchestrator) loadAttempt(ctx context.Context, gatewayIntentID string, principal types.Principal, guestEmail string) (*models.PaymentIntent, error) {
	if strings.TrimSpace(gatewayIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	attempt, err := o.attempts.FindByGatewayIntentID(ctx, gatewayIntentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}
	if !mayAct(attempt, principal, guestEmail) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "this payment belongs to someone else")
	}
	return attempt, nil
}

func (o *Orchestrator) failAttempt(ctx context.Context, attempt *models.PaymentIntent, from enums.AttemptState, code, raw string) error {
	friendly := payments.FriendlyMessage(code)
	extra := map[string]any{"failure_message": friendly}
	if code != "" {
		extra["failure_code"] = code
	}
	if err := o.attempts.Transition(ctx, attempt.ID, from, enums.AttemptStateFailed, extra); err != nil {
		o.logg.Error(ctx, "mark payment attempt failed", err)
	}
	o.logg.Warn(o.logg.WithFields(ctx, map[string]any{"failure_code": code, "gateway_message": raw}), "payment failed")
	o.metrics.IncConfirmation("failed")
	if o.events != nil {
		if err := o.events.Publish(context.WithoutCancel(ctx), eventbus.PaymentFailed{GatewayIntentID: attempt.GatewayIntentID, Reason: code}); err != nil {
			o.logg.Error(ctx, "payment failed listeners failed", err)
		}
	}
	details := map[string]string{"reason": friendly}
	if code != "" {
		details["code"] = code
	}
	return pkgerrors.New(pkgerrors.CodePaymentFailed, friendly).WithDetails(details)
}

// awaitingPayment is an intent the buyer has not paid yet. A decline also leaves the intent in
// requires_payment_method, but with a failure code.
func awaitingPayment(intent payments.Intent) bool {
	return intent.Status == enums.GatewayIntentStatusRequiresPaymentMethod && intent.FailureCode == ""
}

func (o *Orchestrator) revertToReady(ctx context.Context, attempt *models.PaymentIntent) {
	if err := o.attempts.Transition(ctx, attempt.ID, enums.AttemptStateConfirming, enums.AttemptStateReady, nil); err != nil {
		o.logg.Error(ctx, "return payment attempt to ready", err)
	}
}

func (o *Orchestrator) refreshAddresses(ctx context.Context, attempt *models.PaymentIntent, shipping, billing *types.PostalAddress) {
	billing = billingOrShipping(billing, shipping)
	if err := o.attempts.UpdateAddresses(ctx, attempt.ID, shipping, billing); err != nil {
		o.logg.Warn(ctx, fmt.Sprintf("refresh attempt addresses: %v", err))
		return
	}
	attempt.ShippingAddress, attempt.BillingAddress = shipping, billing
}

func (o *Orchestrator) transitionError(err error) error {
	if errors.Is(err, ErrStaleAttempt) {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment is already being processed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment attempt")
}

func validateConfirmAddresses(in ConfirmInput) error {
	if in.Shipping == nil {
		return nil
	}
	differs := in.Billing != nil && !in.Billing.IsZero() && !address.Equal(*in.Billing, *in.Shipping)
	return address.ValidateCheckoutAddresses(*in.Shipping, in.Billing, differs).AsError()
}

func stateError(state enums.AttemptState, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]string{"state": state.String()})
}

func intentResult(attempt *models.PaymentIntent, reused bool) *IntentResult {
	return &IntentResult{
		AttemptID:       attempt.ID,
		GatewayIntentID: attempt.GatewayIntentID,
		ClientSecret:    attempt.ClientSecret,
		Amount:          attempt.Amount,
		Currency:        attempt.Currency,
		Reused:          reused,
		Synthetic:       attempt.Synthetic,
	}
}

func payerOf(principal types.Principal) (*uuid.UUID, *string, error) {
	if !principal.IsGuest() {
		id := *principal.UserID
		return &id, nil, nil
	}
	email := principal.ContactEmail()
	if email == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "guest email is required").
			WithDetails(map[string]string{"guest_email": "is required"})
	}
	return nil, &email, nil
}

func guestDevice(principal types.Principal) *string {
	if !principal.IsGuest() {
		return nil
	}
	device := strings.TrimSpace(principal.GuestID)
	if device == "" {
		return nil
	}
	return &device
}

func sameCustomer(attempt *models.PaymentIntent, ownerID *uuid.UUID, guestEmail *string) bool {
	if ownerID != nil {
		return attempt.OwnerID != nil && *attempt.OwnerID == *ownerID
	}
	return attempt.OwnerID == nil && attempt.GuestEmail != nil && guestEmail != nil &&
		strings.EqualFold(*attempt.GuestEmail, *guestEmail)
}

func mayAct(attempt *models.PaymentIntent, principal types.Principal, guestEmail string) bool {
	if attempt.OwnerID != nil {
		return !principal.IsGuest() && *principal.UserID == *attempt.OwnerID
	}
	if attempt.GuestEmail == nil {
		return false
	}
	if guestEmail == "" {
		guestEmail = principal.ContactEmail()
	}
	return guestEmail != "" && strings.EqualFold(strings.TrimSpace(guestEmail), *attempt.GuestEmail)
}

func principalOf(attempt *models.PaymentIntent) types.Principal {
	if attempt.OwnerID != nil {
		id := *attempt.OwnerID
		return types.Principal{UserID: &id}
	}
	principal := types.Principal{}
	if attempt.GuestEmail != nil {
		principal.GuestEmail = *attempt.GuestEmail
	}
	if attempt.GuestDeviceID != nil {
		principal.GuestID = *attempt.GuestDeviceID
	}
	return principal
}

func billingOrShipping(billing, shipping *types.PostalAddress) *types.PostalAddress {
	if billing != nil && !billing.IsZero() {
		return billing
	}
	return shipping
}
