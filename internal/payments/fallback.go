package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/logger"
)

// FallbackIntentPrefix marks intents synthesized by FallbackGateway.
const FallbackIntentPrefix = "pi_fallback_"

// FallbackGateway keeps local development moving when the real gateway is unreachable.
// It is only wired outside production. Declines are never masked.
type FallbackGateway struct {
	primary Gateway
	logg    *logger.Logger

	mu        sync.Mutex
	synthetic map[string]Intent
}

func NewFallbackGateway(primary Gateway, logg *logger.Logger) (*FallbackGateway, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary gateway required")
	}
	return &FallbackGateway{primary: primary, logg: logg, synthetic: map[string]Intent{}}, nil
}

func (f *FallbackGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	intent, err := f.primary.CreatePaymentIntent(ctx, req)
	if err == nil {
		return intent, nil
	}
	if _, declined := AsDecline(err); declined {
		return Intent{}, err
	}
	if f.logg != nil {
		f.logg.Warn(ctx, fmt.Sprintf("payment gateway unreachable, issuing synthetic intent: %v", err))
	}

	id := FallbackIntentPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	intent = Intent{
		ID:           id,
		ClientSecret: id + "_secret_fallback",
		Status:       enums.GatewayIntentStatusRequiresPaymentMethod,
		AmountCents:  req.AmountCents,
		Currency:     strings.ToLower(req.Currency),
		Metadata:     copyMetadata(req.Metadata),
		Synthetic:    true,
	}
	f.mu.Lock()
	f.synthetic[id] = intent
	f.mu.Unlock()
	return intent, nil
}

func (f *FallbackGateway) ConfirmPayment(ctx context.Context, intentID string, method PaymentMethod) (Intent, error) {
	if intent, ok := f.succeedSynthetic(intentID, "synthetic "+method.Kind.String()); ok {
		return intent, nil
	}
	return f.primary.ConfirmPayment(ctx, intentID, method)
}

func (f *FallbackGateway) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	if intent, ok := f.succeedSynthetic(intentID, "synthetic card"); ok {
		return intent, nil
	}
	return f.primary.RetrieveIntent(ctx, intentID)
}

func (f *FallbackGateway) WalletSupport(ctx context.Context, probe WalletProbe) bool {
	return f.primary.WalletSupport(ctx, probe)
}

func (f *FallbackGateway) succeedSynthetic(intentID, summary string) (Intent, bool) {
	if !strings.HasPrefix(intentID, FallbackIntentPrefix) {
		return Intent{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.synthetic[intentID]
	if !ok {
		return Intent{}, false
	}
	intent.Status = enums.GatewayIntentStatusSucceeded
	if intent.PaymentMethodSummary == "" {
		intent.PaymentMethodSummary = summary
	}
	f.synthetic[intentID] = intent
	return intent, true
}
