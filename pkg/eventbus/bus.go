// Package eventbus is an in-process observer owned by the application shell and injected into the
// components that publish. Handlers run synchronously in registration order.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Topic string

const (
	TopicOrderConfirmed  Topic = "order.confirmed"
	TopicPaymentFailed   Topic = "payment.failed"
	TopicSignInRequested Topic = "checkout.sign_in_requested"
)

// Event is anything published on the bus.
type Event interface {
	Topic() Topic
}

type OrderConfirmed struct {
	OrderID         uuid.UUID
	GatewayIntentID string
	OwnerID         *uuid.UUID
	GuestEmail      string
	Total           decimal.Decimal
	Synthetic       bool
}

func (OrderConfirmed) Topic() Topic { return TopicOrderConfirmed }

type PaymentFailed struct {
	GatewayIntentID string
	Reason          string
}

func (PaymentFailed) Topic() Topic { return TopicPaymentFailed }

// SignInRequested asks the shell to offer sign-in, e.g. when a guest's email already has an account.
type SignInRequested struct {
	SessionID string
	Email     string
}

func (SignInRequested) Topic() Topic { return TopicSignInRequested }

type Handler func(ctx context.Context, event Event) error

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Bus struct {
	mtx      sync.RWMutex
	handlers map[Topic][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[Topic][]Handler)}
}

func (b *Bus) Subscribe(topic Topic, handler Handler) {
	if handler == nil {
		return
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish delivers event to every handler of its topic. All handlers run even when some fail;
// the returned error combines their failures.
func (b *Bus) Publish(ctx context.Context, event Event) (err error) {
	if b == nil || event == nil {
		return nil
	}
	b.mtx.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Topic()]...)
	b.mtx.RUnlock()

	for _, handler := range handlers {
		err = multierr.Append(err, invoke(ctx, handler, event))
	}
	return err
}

func invoke(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", event.Topic(), r)
		}
	}()
	return handler(ctx, event)
}
