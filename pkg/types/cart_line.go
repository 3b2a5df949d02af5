package types

import (
	"github.com/shopspring/decimal"
)

// CartLine is a priced line frozen into payment attempts and orders.
type CartLine struct {
	ListingID string          `json:"listing_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	ImageURL  *string         `json:"image_url,omitempty"`
}

// LineTotal returns unit price × quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
