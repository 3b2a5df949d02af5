package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/eventbus"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

func shippingForm() ShippingInput {
	return ShippingInput{
		Shipping:              shippingAddress(),
		BillingSameAsShipping: true,
	}
}

func (e *testEnv) toPayment(t *testing.T, principal types.Principal) *Session {
	t.Helper()
	e.fillCart(t, principal, drill())
	session, err := e.flow.Begin(context.Background(), principal)
	require.NoError(t, err)
	result, err := e.flow.SubmitShipping(context.Background(), principal, session.ID, shippingForm())
	require.NoError(t, err)
	return result.Session
}

func TestBeginWithEmptyCartRedirects(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.flow.Begin(context.Background(), guestPrincipal())
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	assert.Equal(t, map[string]string{"redirect": "/cart"}, appErr.Details())
}

func TestBeginGuestDefaultsBillingToShipping(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	env.fillCart(t, guest, drill())

	session, err := env.flow.Begin(context.Background(), guest)
	require.NoError(t, err)

	assert.Equal(t, enums.CheckoutStepShipping, session.Step)
	assert.True(t, session.BillingSameAsShipping)
	assert.Nil(t, session.Shipping)
	assert.Equal(t, "device-1", session.GuestID)
	assert.True(t, env.mr.Exists("tyd:checkout_session:"+session.ID))
}

func TestBeginPrefillsSavedAddresses(t *testing.T) {
	env := newTestEnv(t)
	owner := userPrincipal()
	ctx := context.Background()
	env.fillCart(t, owner, drill())

	_, err := env.addrs.SaveFromCheckout(ctx, *owner.UserID, shippingAddress(), enums.AddressTypeShipping)
	require.NoError(t, err)

	session, err := env.flow.Begin(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, session.Shipping)
	assert.Equal(t, "500 Lamar Blvd", session.Shipping.Street)
	assert.Nil(t, session.Billing)
	assert.True(t, session.BillingSameAsShipping)

	_, err = env.addrs.SaveFromCheckout(ctx, *owner.UserID, billingAddress(), enums.AddressTypeBilling)
	require.NoError(t, err)

	session, err = env.flow.Begin(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, session.Billing)
	assert.Equal(t, "22 Congress Ave", session.Billing.Street)
	assert.False(t, session.BillingSameAsShipping)
}

func TestSubmitShippingReportsFieldErrors(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	env.fillCart(t, guest, drill())
	session, err := env.flow.Begin(context.Background(), guest)
	require.NoError(t, err)

	form := shippingForm()
	form.Shipping.PostalCode = "787"
	form.Shipping.City = ""
	form.Billing = &types.PostalAddress{}

	_, err = env.flow.SubmitShipping(context.Background(), guest, session.ID, form)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	details, ok := appErr.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "shipping.postal_code")
	assert.Contains(t, details, "shipping.city")
	for key := range details {
		assert.NotContains(t, key, "billing")
	}

	form = shippingForm()
	form.BillingSameAsShipping = false
	_, err = env.flow.SubmitShipping(context.Background(), guest, session.ID, form)
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Contains(t, appErr.Details(), "billing")

	stored, err := env.flow.Get(context.Background(), guest, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepShipping, stored.Step)
}

func TestSubmitShippingThenBackKeepsIntent(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	session := env.toPayment(t, guest)
	assert.Equal(t, enums.CheckoutStepPayment, session.Step)
	assert.Equal(t, "buyer@example.com", session.GuestEmail)

	intent, err := env.flow.CreatePaymentIntent(context.Background(), guest, session.ID, nil)
	require.NoError(t, err)

	back, err := env.flow.Back(context.Background(), guest, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStepShipping, back.Step)
	assert.Equal(t, intent.GatewayIntentID, back.GatewayIntentID)

	_, err = env.flow.Back(context.Background(), guest, session.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = env.flow.CreatePaymentIntent(context.Background(), guest, session.ID, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	result, err := env.flow.SubmitShipping(context.Background(), guest, session.ID, shippingForm())
	require.NoError(t, err)
	again, err := env.flow.CreatePaymentIntent(context.Background(), guest, result.Session.ID, nil)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, intent.GatewayIntentID, again.GatewayIntentID)
}

func TestGuestCheckoutEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	session := env.toPayment(t, guest)

	intent, err := env.flow.CreatePaymentIntent(context.Background(), guest, session.ID, nil)
	require.NoError(t, err)
	assert.True(t, intent.Amount.Equal(dec("162.36")))

	result, err := env.flow.SubmitPayment(context.Background(), guest, session.ID, card("pm_card_visa"))
	require.NoError(t, err)

	order, err := env.orders.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order.GuestEmail)
	assert.Equal(t, "buyer@example.com", *order.GuestEmail)
	assert.Equal(t, "500 Lamar Blvd", order.BillingAddress.Street)
	assert.False(t, env.mr.Exists("tyd:checkout_session:"+session.ID))

	c, err := env.carts.Get(context.Background(), guest)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestConfirmPaymentChecksSessionIntent(t *testing.T) {
	env := newTestEnv(t)
	owner := userPrincipal()
	session := env.toPayment(t, owner)
	intent, err := env.flow.CreatePaymentIntent(context.Background(), owner, session.ID, nil)
	require.NoError(t, err)

	_, err = env.flow.ConfirmPayment(context.Background(), owner, session.ID, "pi_someone_else")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	env.gateway.SetStatus(intent.GatewayIntentID, enums.GatewayIntentStatusSucceeded)
	result, err := env.flow.ConfirmPayment(context.Background(), owner, session.ID, intent.GatewayIntentID)
	require.NoError(t, err)

	order, err := env.orders.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order.OwnerID)
	assert.Equal(t, *owner.UserID, *order.OwnerID)
}

func TestSessionBelongsToItsPrincipal(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	session := env.toPayment(t, guest)

	other := types.Principal{GuestID: "device-2", GuestEmail: "buyer@example.com"}
	_, err := env.flow.CreatePaymentIntent(context.Background(), other, session.ID, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = env.flow.Get(context.Background(), guest, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSubmitShippingCreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	env.fillCart(t, guest, drill())
	session, err := env.flow.Begin(context.Background(), guest)
	require.NoError(t, err)

	form := shippingForm()
	form.CreateAccount = true
	form.Password = "workbench42"
	result, err := env.flow.SubmitShipping(context.Background(), guest, session.ID, form)
	require.NoError(t, err)

	require.NotNil(t, result.Account)
	assert.NotEmpty(t, result.Account.AccessToken)
	require.NotNil(t, result.Session.AccountID)
	assert.Equal(t, result.Account.User.ID, *result.Session.AccountID)
	assert.Empty(t, result.Session.AccountError)
}

func TestSubmitShippingAccountFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	first := guestPrincipal()
	env.fillCart(t, first, drill())
	session, err := env.flow.Begin(context.Background(), first)
	require.NoError(t, err)
	form := shippingForm()
	form.CreateAccount = true
	form.Password = "workbench42"
	_, err = env.flow.SubmitShipping(context.Background(), first, session.ID, form)
	require.NoError(t, err)

	second := types.Principal{GuestID: "device-2"}
	env.fillCart(t, second, saw())
	session, err = env.flow.Begin(context.Background(), second)
	require.NoError(t, err)
	result, err := env.flow.SubmitShipping(context.Background(), second, session.ID, form)
	require.NoError(t, err)

	assert.Equal(t, enums.CheckoutStepPayment, result.Session.Step)
	assert.Nil(t, result.Account)
	assert.Nil(t, result.Session.AccountID)
	assert.NotEmpty(t, result.Session.AccountError)

	requested := env.events.ofTopic(eventbus.TopicSignInRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, "buyer@example.com", requested[0].(eventbus.SignInRequested).Email)

	form.Password = "short"
	third := types.Principal{GuestID: "device-3"}
	env.fillCart(t, third, saw())
	session, err = env.flow.Begin(context.Background(), third)
	require.NoError(t, err)
	form.Shipping.Email = nil
	form.Email = "third@example.com"
	result, err = env.flow.SubmitShipping(context.Background(), third, session.ID, form)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Session.AccountError)
	assert.Equal(t, "third@example.com", result.Session.GuestEmail)
}
