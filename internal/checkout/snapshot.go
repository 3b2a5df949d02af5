package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/money"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// CartSnapshot is the frozen cart a payment attempt is priced from.
type CartSnapshot struct {
	CartID   string           `json:"cart_id"`
	Lines    []types.CartLine `json:"lines"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Tax      decimal.Decimal  `json:"tax"`
	Total    decimal.Decimal  `json:"total"`
	Currency string           `json:"currency"`
}

// NewSnapshot prices lines and freezes them. Totals are always derived here, never taken from the caller.
func NewSnapshot(cartID string, lines []types.CartLine, taxRate decimal.Decimal, currency string) (CartSnapshot, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return CartSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	frozen := make([]types.CartLine, 0, len(lines))
	for idx, line := range lines {
		if strings.TrimSpace(line.ListingID) == "" {
			return CartSnapshot{}, pkgerrors.Errorf(pkgerrors.CodeValidation, "line %d: listing id is required", idx)
		}
		if line.Quantity < 1 {
			return CartSnapshot{}, pkgerrors.Errorf(pkgerrors.CodeValidation, "line %d: quantity must be at least 1", idx)
		}
		if line.UnitPrice.IsNegative() {
			return CartSnapshot{}, pkgerrors.Errorf(pkgerrors.CodeValidation, "line %d: unit price must be non-negative", idx)
		}
		line.ListingID = strings.TrimSpace(line.ListingID)
		line.UnitPrice = money.Round(line.UnitPrice)
		frozen = append(frozen, line)
	}
	breakdown := money.Price(money.Sum(frozen), taxRate)
	return CartSnapshot{
		CartID:   cartID,
		Lines:    frozen,
		Subtotal: breakdown.Subtotal,
		Tax:      breakdown.Tax,
		Total:    breakdown.Total,
		Currency: strings.ToLower(currency),
	}, nil
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Fingerprint identifies the priced contents of the cart, independent of line order.
func (s CartSnapshot) Fingerprint() string {
	return fingerprintLines(s.Lines)
}

func fingerprintLines(lines []types.CartLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s|%s|%d", line.ListingID, money.Round(line.UnitPrice).StringFixed(2), line.Quantity))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
