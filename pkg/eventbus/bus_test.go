package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestPublishDeliversToTopicSubscribersInOrder(t *testing.T) {
	bus := New()
	var calls []string
	bus.Subscribe(TopicOrderConfirmed, func(ctx context.Context, event Event) error {
		confirmed, ok := event.(OrderConfirmed)
		require.True(t, ok)
		calls = append(calls, "first:"+confirmed.GatewayIntentID)
		return nil
	})
	bus.Subscribe(TopicOrderConfirmed, func(ctx context.Context, event Event) error {
		calls = append(calls, "second")
		return nil
	})
	bus.Subscribe(TopicPaymentFailed, func(ctx context.Context, event Event) error {
		calls = append(calls, "wrong-topic")
		return nil
	})

	err := bus.Publish(context.Background(), OrderConfirmed{OrderID: uuid.New(), GatewayIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:pi_1", "second"}, calls)
}

func TestPublishRunsAllHandlersAndCombinesErrors(t *testing.T) {
	bus := New()
	ran := 0
	bus.Subscribe(TopicPaymentFailed, func(ctx context.Context, event Event) error {
		ran++
		return errors.New("first failed")
	})
	bus.Subscribe(TopicPaymentFailed, func(ctx context.Context, event Event) error {
		ran++
		panic("boom")
	})
	bus.Subscribe(TopicPaymentFailed, func(ctx context.Context, event Event) error {
		ran++
		return nil
	})

	err := bus.Publish(context.Background(), PaymentFailed{GatewayIntentID: "pi_2"})
	require.Error(t, err)
	assert.Equal(t, 3, ran)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.Publish(context.Background(), SignInRequested{Email: "a@b.co"}))
}
