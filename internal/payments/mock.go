package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/toolyard/marketplace-backend/pkg/enums"
)

// MockIntentPrefix marks intents issued by MockGateway.
const MockIntentPrefix = "pi_mock_"

// Test payment method ids that MockGateway declines, keyed to the failure code returned.
var mockDeclines = map[string]string{
	"pm_card_declined":           "card_declined",
	"pm_card_expired":            "expired_card",
	"pm_card_insufficient_funds": "insufficient_funds",
	"pm_card_incorrect_number":   "incorrect_number",
	"pm_card_incorrect_cvc":      "incorrect_cvc",
}

// MockGateway is an in-memory gateway for tests and local development.
type MockGateway struct {
	mu          sync.Mutex
	intents     map[string]*Intent
	autoSucceed bool
	createErr   error
	retrieveErr error
	calls       map[string]int
}

// NewMockGateway returns an empty mock. With autoSucceed, intents the buyer never confirmed
// server-side report success on retrieval, standing in for client-side confirmation.
func NewMockGateway(autoSucceed bool) *MockGateway {
	return &MockGateway{
		intents:     map[string]*Intent{},
		autoSucceed: autoSucceed,
		calls:       map[string]int{},
	}
}

// FailCreate makes subsequent CreatePaymentIntent calls return err. Nil clears it.
func (m *MockGateway) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// FailRetrieve makes subsequent RetrieveIntent calls return err. Nil clears it.
func (m *MockGateway) FailRetrieve(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieveErr = err
}

// SetStatus overrides the stored status of an intent.
func (m *MockGateway) SetStatus(intentID string, status enums.GatewayIntentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent, ok := m.intents[intentID]; ok {
		intent.Status = status
	}
}

// Calls reports how many times an operation ran.
func (m *MockGateway) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[operation]
}

func (m *MockGateway) CreatePaymentIntent(_ context.Context, req CreateIntentRequest) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["create"]++
	if m.createErr != nil {
		return Intent{}, m.createErr
	}
	if req.AmountCents <= 0 {
		return Intent{}, fmt.Errorf("amount must be positive")
	}
	id := MockIntentPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_mock",
		Status:       enums.GatewayIntentStatusRequiresPaymentMethod,
		AmountCents:  req.AmountCents,
		Currency:     strings.ToLower(req.Currency),
		Metadata:     copyMetadata(req.Metadata),
		Synthetic:    true,
	}
	m.intents[id] = intent
	return *intent, nil
}

func (m *MockGateway) ConfirmPayment(_ context.Context, intentID string, method PaymentMethod) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["confirm"]++
	intent, ok := m.intents[intentID]
	if !ok {
		return Intent{}, fmt.Errorf("mock intent %s not found", intentID)
	}
	if code, declined := mockDeclines[method.ID]; declined {
		intent.Status = enums.GatewayIntentStatusRequiresPaymentMethod
		intent.FailureCode = code
		return *intent, &DeclineError{Code: code, Raw: "mock decline for " + method.ID}
	}
	intent.Status = enums.GatewayIntentStatusSucceeded
	intent.FailureCode = ""
	intent.PaymentMethodSummary = mockSummary(method)
	return *intent, nil
}

func (m *MockGateway) RetrieveIntent(_ context.Context, intentID string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["retrieve"]++
	if m.retrieveErr != nil {
		return Intent{}, m.retrieveErr
	}
	intent, ok := m.intents[intentID]
	if !ok {
		return Intent{}, fmt.Errorf("mock intent %s not found", intentID)
	}
	if m.autoSucceed && intent.Status == enums.GatewayIntentStatusRequiresPaymentMethod && intent.FailureCode == "" {
		intent.Status = enums.GatewayIntentStatusSucceeded
		intent.PaymentMethodSummary = "mock card"
	}
	return *intent, nil
}

// WalletSupport always offers wallets so the wallet path can be exercised without a device.
func (m *MockGateway) WalletSupport(context.Context, WalletProbe) bool {
	return true
}

func mockSummary(method PaymentMethod) string {
	if method.Kind == enums.PaymentMethodKindWallet {
		return "mock wallet"
	}
	return "mock card ending 4242"
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
