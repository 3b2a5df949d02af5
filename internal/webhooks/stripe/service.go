// Package stripewebhook turns Stripe payment intent notifications into checkout state changes.
package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/toolyard/marketplace-backend/internal/checkout"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
)

type paymentReconciler interface {
	ConfirmFromGateway(ctx context.Context, gatewayIntentID string) (*checkout.ConfirmResult, error)
	MarkFailed(ctx context.Context, gatewayIntentID, code, raw string) error
}

type ServiceParams struct {
	Payments paymentReconciler
	Logger   *logger.Logger
}

type Service struct {
	payments paymentReconciler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment orchestrator required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent applies one verified Stripe event. Event types other than payment intent outcomes are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		ctx = s.logg.WithIntentID(ctx, pi.ID)
		result, err := s.payments.ConfirmFromGateway(ctx, pi.ID)
		if err != nil {
			return err
		}
		if result != nil {
			s.logg.Info(s.logg.WithField(ctx, "order_id", result.OrderID.String()), "order confirmed from stripe notification")
		}
		return nil
	case stripe.EventTypePaymentIntentPaymentFailed:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		code, raw := failureOf(pi)
		return s.payments.MarkFailed(s.logg.WithIntentID(ctx, pi.ID), pi.ID, code, raw)
	case stripe.EventTypePaymentIntentCanceled:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.payments.MarkFailed(s.logg.WithIntentID(ctx, pi.ID), pi.ID, "", fmt.Sprintf("canceled: %s", pi.CancellationReason))
	default:
		return nil
	}
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &pi, nil
}

func failureOf(pi *stripe.PaymentIntent) (string, string) {
	lastErr := pi.LastPaymentError
	if lastErr == nil {
		return "", ""
	}
	if lastErr.DeclineCode != "" {
		return string(lastErr.DeclineCode), lastErr.Msg
	}
	return string(lastErr.Code), lastErr.Msg
}
