package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

func TestDirectIntentChargesStoredCart(t *testing.T) {
	env := newTestEnv(t)
	guest := types.Principal{GuestID: "device-1"}
	c := env.fillCart(t, guest, drill())

	bogus := dec("1.00")
	result, err := env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{
		CartID:     c.ID,
		IsGuest:    true,
		GuestEmail: "Buyer@Example.com",
		GuestItems: []types.CartLine{{ListingID: "drill-18v", Name: "18V cordless drill", UnitPrice: dec("1.00"), Quantity: 1}},
		GuestTotal: &bogus,
	})
	require.NoError(t, err)
	assert.True(t, result.Amount.Equal(dec("162.36")), "amount was %s", result.Amount)
	assert.NotEmpty(t, result.ClientSecret)

	attempt := env.attempt(t, result.GatewayIntentID)
	require.NotNil(t, attempt.GuestEmail)
	assert.Equal(t, "buyer@example.com", *attempt.GuestEmail)
}

func TestDirectIntentPricesClientHeldGuestCart(t *testing.T) {
	env := newTestEnv(t)
	guest := types.Principal{GuestID: "device-fresh"}

	claimed := dec("1.00")
	result, err := env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{
		IsGuest:    true,
		GuestEmail: "buyer@example.com",
		GuestItems: []types.CartLine{{ListingID: "drill-18v", Name: "18V cordless drill", UnitPrice: dec("149.99"), Quantity: 1}},
		GuestTotal: &claimed,
	})
	require.NoError(t, err)
	assert.True(t, result.Amount.Equal(dec("162.36")), "amount was %s", result.Amount)

	attempt := env.attempt(t, result.GatewayIntentID)
	assert.Equal(t, "guest:device-fresh", attempt.CartID)
	require.Len(t, attempt.Snapshot, 1)
	assert.Equal(t, "drill-18v", attempt.Snapshot[0].ListingID)
}

func TestDirectIntentRejectsEmptyOrBadClientCart(t *testing.T) {
	env := newTestEnv(t)
	guest := types.Principal{GuestID: "device-fresh"}

	_, err := env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{IsGuest: true, GuestEmail: "buyer@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{
		IsGuest:    true,
		GuestEmail: "buyer@example.com",
		GuestItems: []types.CartLine{{ListingID: "drill-18v", UnitPrice: dec("149.99"), Quantity: 0}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, env.gateway.Calls("create"))
}

func TestDirectIntentRequiresGuestFlagAndEmail(t *testing.T) {
	env := newTestEnv(t)
	guest := types.Principal{GuestID: "device-1"}
	env.fillCart(t, guest, drill())

	_, err := env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{IsGuest: false})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{IsGuest: true})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDirectIntentSignedInIgnoresGuestFlag(t *testing.T) {
	env := newTestEnv(t)
	user := userPrincipal()
	env.fillCart(t, user, saw())

	result, err := env.flow.DirectIntent(context.Background(), user, DirectIntentRequest{IsGuest: true, GuestEmail: "other@example.com"})
	require.NoError(t, err)

	attempt := env.attempt(t, result.GatewayIntentID)
	require.NotNil(t, attempt.OwnerID)
	assert.Equal(t, *user.UserID, *attempt.OwnerID)
	assert.Nil(t, attempt.GuestEmail)
}

func TestDirectConfirmRecordsGuestOrder(t *testing.T) {
	env := newTestEnv(t)
	guest := guestPrincipal()
	env.fillCart(t, guest, drill())

	intent, err := env.flow.DirectIntent(context.Background(), guest, DirectIntentRequest{IsGuest: true})
	require.NoError(t, err)
	env.gateway.SetStatus(intent.GatewayIntentID, enums.GatewayIntentStatusSucceeded)

	shipping := shippingAddress()
	total := dec("162.36")
	req := DirectConfirmRequest{
		GatewayIntentID: intent.GatewayIntentID,
		IsGuest:         true,
		GuestEmail:      guest.GuestEmail,
		GuestItems:      []types.CartLine{{ListingID: "drill-18v", Name: "18V cordless drill", UnitPrice: dec("149.99"), Quantity: 1}},
		CartTotal:       &total,
		Shipping:        &shipping,
	}
	first, err := env.flow.DirectConfirm(context.Background(), guest, req)
	require.NoError(t, err)
	second, err := env.flow.DirectConfirm(context.Background(), guest, req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.AlreadyConfirmed)

	c, err := env.carts.Get(context.Background(), guest)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestDirectConfirmRequiresIntentID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.flow.DirectConfirm(context.Background(), guestPrincipal(), DirectConfirmRequest{IsGuest: true})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
