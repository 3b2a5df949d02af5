package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/toolyard/marketplace-backend/internal/checkout"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/redis"
)

type failedCall struct {
	intentID string
	code     string
}

type fakeReconciler struct {
	confirmed  []string
	failed     []failedCall
	confirmErr error
}

func (f *fakeReconciler) ConfirmFromGateway(_ context.Context, gatewayIntentID string) (*checkout.ConfirmResult, error) {
	f.confirmed = append(f.confirmed, gatewayIntentID)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &checkout.ConfirmResult{OrderID: uuid.New()}, nil
}

func (f *fakeReconciler) MarkFailed(_ context.Context, gatewayIntentID, code, _ string) error {
	f.failed = append(f.failed, failedCall{intentID: gatewayIntentID, code: code})
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeReconciler) {
	t.Helper()
	fake := &fakeReconciler{}
	svc, err := NewService(ServiceParams{
		Payments: fake,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, fake
}

func intentEvent(t *testing.T, eventType stripe.EventType, pi *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(pi)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestHandleSucceededConfirmsOrder(t *testing.T) {
	svc, fake := newTestService(t)

	err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_123"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_123"}, fake.confirmed)
}

func TestHandleSucceededPropagatesOrderFailure(t *testing.T) {
	svc, fake := newTestService(t)
	fake.confirmErr = pkgerrors.New(pkgerrors.CodeOrderPending, "payment received but the order could not be recorded")

	err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_123"}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderPending))
}

func TestHandlePaymentFailedUsesDeclineCode(t *testing.T) {
	svc, fake := newTestService(t)
	pi := &stripe.PaymentIntent{
		ID: "pi_456",
		LastPaymentError: &stripe.Error{
			Code:        stripe.ErrorCodeCardDeclined,
			DeclineCode: stripe.DeclineCodeInsufficientFunds,
			Msg:         "Your card has insufficient funds.",
		},
	}

	require.NoError(t, svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, pi)))
	require.Len(t, fake.failed, 1)
	assert.Equal(t, failedCall{intentID: "pi_456", code: "insufficient_funds"}, fake.failed[0])
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	svc, fake := newTestService(t)
	event := &stripe.Event{Type: stripe.EventTypeChargeRefunded, Data: &stripe.EventData{Raw: []byte(`{}`)}}

	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, fake.confirmed)
	assert.Empty(t, fake.failed)
}

func TestHandleRejectsMalformedEvent(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.HandleEvent(context.Background(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	event := &stripe.Event{Type: stripe.EventTypePaymentIntentSucceeded, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	err = svc.HandleEvent(context.Background(), event)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEventGuardClaimsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	guard, err := NewEventGuard(client, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, time.Hour, mr.TTL("tyd:idempotency:stripe_event:evt_1"))

	claimed, err = guard.Claim(ctx, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	claimed, err = guard.Claim(ctx, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, err = guard.Claim(ctx, "", "")
	assert.Error(t, err)
}

func TestNewEventGuardValidates(t *testing.T) {
	_, err := NewEventGuard(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewEventGuard(redis.NewFromRedis(nil), -time.Second)
	assert.Error(t, err)

	guard, err := NewEventGuard(redis.NewFromRedis(nil), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultEventTTL, guard.ttl)
}
