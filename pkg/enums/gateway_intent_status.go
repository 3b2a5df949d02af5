package enums

import "fmt"

// GatewayIntentStatus mirrors the status reported by the payment gateway for an intent.
type GatewayIntentStatus string

const (
	GatewayIntentStatusRequiresPaymentMethod GatewayIntentStatus = "requires_payment_method"
	GatewayIntentStatusRequiresConfirmation  GatewayIntentStatus = "requires_confirmation"
	GatewayIntentStatusRequiresAction        GatewayIntentStatus = "requires_action"
	GatewayIntentStatusProcessing            GatewayIntentStatus = "processing"
	GatewayIntentStatusRequiresCapture       GatewayIntentStatus = "requires_capture"
	GatewayIntentStatusCanceled              GatewayIntentStatus = "canceled"
	GatewayIntentStatusSucceeded             GatewayIntentStatus = "succeeded"
)

var validGatewayIntentStatuses = []GatewayIntentStatus{
	GatewayIntentStatusRequiresPaymentMethod,
	GatewayIntentStatusRequiresConfirmation,
	GatewayIntentStatusRequiresAction,
	GatewayIntentStatusProcessing,
	GatewayIntentStatusRequiresCapture,
	GatewayIntentStatusCanceled,
	GatewayIntentStatusSucceeded,
}

// String implements fmt.Stringer.
func (g GatewayIntentStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayIntentStatus.
func (g GatewayIntentStatus) IsValid() bool {
	for _, candidate := range validGatewayIntentStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayIntentStatus converts raw input into a GatewayIntentStatus.
func ParseGatewayIntentStatus(value string) (GatewayIntentStatus, error) {
	for _, candidate := range validGatewayIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway intent status %q", value)
}
