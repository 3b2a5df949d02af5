package payments

import "strings"

const genericFailureMessage = "We couldn't process your payment. Please try again or use a different payment method."

var friendlyMessages = map[string]string{
	"card_declined":           "Your card was declined. Please try a different card.",
	"generic_decline":         "Your card was declined. Please try a different card.",
	"do_not_honor":            "Your card was declined. Please try a different card.",
	"expired_card":            "Your card has expired. Please use a different card.",
	"insufficient_funds":      "Your card has insufficient funds. Please use a different card.",
	"incorrect_number":        "Your card number is incorrect. Please check it and try again.",
	"invalid_number":          "Your card number is incorrect. Please check it and try again.",
	"incorrect_cvc":           "Your card's security code is incorrect.",
	"invalid_cvc":             "Your card's security code is incorrect.",
	"invalid_expiry_month":    "Your card's expiration date is incorrect.",
	"invalid_expiry_year":     "Your card's expiration date is incorrect.",
	"processing_error":        "An error occurred while processing your card. Please try again.",
	"authentication_required": "Your bank requires additional verification. Please try again.",
}

// FriendlyMessage maps a gateway failure code to buyer-facing text.
func FriendlyMessage(code string) string {
	if msg, ok := friendlyMessages[strings.ToLower(strings.TrimSpace(code))]; ok {
		return msg
	}
	return genericFailureMessage
}
