package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/metrics"
	pkgstripe "github.com/toolyard/marketplace-backend/pkg/stripe"
)

// intentAPI is the subset of Stripe's payment intent operations used here.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntentAPI struct{}

func (stripeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (stripeIntentAPI) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Confirm(id, params)
}

func (stripeIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

// StripeOptions tunes the Stripe gateway.
type StripeOptions struct {
	// WalletDomainVerified is set once the storefront domain is registered for Apple Pay.
	WalletDomainVerified bool
	Metrics              *metrics.CheckoutMetrics
	Logger               *logger.Logger
}

// StripeGateway talks to Stripe payment intents behind a circuit breaker.
type StripeGateway struct {
	api     intentAPI
	breaker *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	wallet  bool
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
}

// NewStripeGateway builds a gateway on an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client, opts StripeOptions) (*StripeGateway, error) {
	if client == nil || client.API() == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return newStripeGateway(stripeIntentAPI{}, opts), nil
}

func newStripeGateway(api intentAPI, opts StripeOptions) *StripeGateway {
	g := &StripeGateway{
		api:     api,
		wallet:  opts.WalletDomainVerified,
		metrics: opts.Metrics,
		logg:    opts.Logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if g.logg != nil {
				g.logg.Warn(context.Background(), fmt.Sprintf("circuit %s moved from %s to %s", name, from, to))
			}
		},
	})
	return g
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	if req.AmountCents <= 0 {
		return Intent{}, fmt.Errorf("amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.call("create_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.New(params)
	})
	if err != nil {
		return Intent{}, err
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) ConfirmPayment(ctx context.Context, intentID string, method PaymentMethod) (Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(method.ID),
	}
	params.AddExpand("payment_method")
	params.Context = ctx

	pi, err := g.call("confirm_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.Confirm(intentID, params)
	})
	if err != nil {
		return Intent{}, err
	}
	return declineFromIntent(toIntent(pi), pi)
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("payment_method")
	params.Context = ctx

	pi, err := g.call("retrieve_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.Get(intentID, params)
	})
	if err != nil {
		return Intent{}, err
	}
	return toIntent(pi), nil
}

// WalletSupport offers wallets only when the device can pay and the domain is verified.
func (g *StripeGateway) WalletSupport(_ context.Context, probe WalletProbe) bool {
	return g.wallet && probe.CanMakePayment
}

func (g *StripeGateway) call(operation string, fn func() (*stripe.PaymentIntent, error)) (*stripe.PaymentIntent, error) {
	start := time.Now()
	pi, err := g.breaker.Execute(fn)
	g.metrics.ObserveGateway(operation, time.Since(start))
	if err != nil {
		return nil, translateStripeError(operation, err)
	}
	return pi, nil
}

// isBreakerSuccess keeps buyer-side failures from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	if stripeErr.Type == stripe.ErrorTypeCard {
		return true
	}
	status := stripeErr.HTTPStatusCode
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func translateStripeError(operation string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("stripe %s: %w", operation, ErrUnavailable)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return &DeclineError{Code: stripeFailureCode(stripeErr), Raw: stripeErr.Msg}
	}
	return fmt.Errorf("stripe %s: %w", operation, err)
}

func stripeFailureCode(stripeErr *stripe.Error) string {
	if stripeErr == nil {
		return ""
	}
	if stripeErr.DeclineCode != "" {
		return string(stripeErr.DeclineCode)
	}
	return string(stripeErr.Code)
}

func declineFromIntent(intent Intent, pi *stripe.PaymentIntent) (Intent, error) {
	if intent.Status != enums.GatewayIntentStatusRequiresPaymentMethod || pi.LastPaymentError == nil {
		return intent, nil
	}
	return intent, &DeclineError{Code: intent.FailureCode, Raw: pi.LastPaymentError.Msg}
}

func toIntent(pi *stripe.PaymentIntent) Intent {
	if pi == nil {
		return Intent{}
	}
	intent := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       enums.GatewayIntentStatus(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureCode = stripeFailureCode(pi.LastPaymentError)
	}
	if pm := pi.PaymentMethod; pm != nil {
		intent.PaymentMethodSummary = summarizeStripeMethod(pm)
	}
	return intent
}

func summarizeStripeMethod(pm *stripe.PaymentMethod) string {
	if pm.Card == nil {
		return string(pm.Type)
	}
	return fmt.Sprintf("%s ending %s", pm.Card.Brand, pm.Card.Last4)
}
