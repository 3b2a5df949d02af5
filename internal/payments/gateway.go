// Package payments holds the payment gateway abstraction and its implementations.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/toolyard/marketplace-backend/pkg/enums"
)

// ErrUnavailable means the gateway could not be reached or is shedding load.
var ErrUnavailable = errors.New("payment gateway unavailable")

// CreateIntentRequest asks the gateway for a new intent. AmountCents is already in minor units.
type CreateIntentRequest struct {
	AmountCents    int64
	Currency       string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentMethod is a tokenized card or wallet credential.
type PaymentMethod struct {
	Kind enums.PaymentMethodKind `json:"kind" validate:"required,oneof=card wallet"`
	ID   string                  `json:"id" validate:"required"`
}

// Intent is the gateway's view of a payment intent.
type Intent struct {
	ID                   string
	ClientSecret         string
	Status               enums.GatewayIntentStatus
	AmountCents          int64
	Currency             string
	Metadata             map[string]string
	PaymentMethodSummary string
	FailureCode          string
	// Synthetic marks intents that were never sent to a real gateway.
	Synthetic bool
}

// Succeeded reports whether money has moved.
func (i Intent) Succeeded() bool {
	return i.Status == enums.GatewayIntentStatusSucceeded
}

// WalletProbe carries what the buyer's device reported about wallet payments.
type WalletProbe struct {
	CanMakePayment bool `json:"can_make_payment"`
}

// Gateway is the payment provider seen by checkout.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	ConfirmPayment(ctx context.Context, intentID string, method PaymentMethod) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	WalletSupport(ctx context.Context, probe WalletProbe) bool
}

// DeclineError is a gateway-reported payment failure such as a declined or expired card.
// Raw holds the gateway's own text and must only be logged.
type DeclineError struct {
	Code string
	Raw  string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Raw)
}

// FriendlyMessage is the text shown to the buyer.
func (e *DeclineError) FriendlyMessage() string {
	return FriendlyMessage(e.Code)
}

// AsDecline extracts a DeclineError from err.
func AsDecline(err error) (*DeclineError, bool) {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return decline, true
	}
	return nil, false
}
