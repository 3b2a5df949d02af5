package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// OrderView is the read-only order shown after checkout.
type OrderView struct {
	ID                   string              `json:"id"`
	Status               enums.OrderStatus   `json:"status"`
	Items                []types.CartLine    `json:"items"`
	Subtotal             decimal.Decimal     `json:"subtotal"`
	Tax                  decimal.Decimal     `json:"tax"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	Currency             string              `json:"currency"`
	ShippingAddress      types.PostalAddress `json:"shipping_address"`
	BillingAddress       types.PostalAddress `json:"billing_address"`
	PaymentMethodSummary string              `json:"payment_method_summary,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	// Synthetic is true for demo orders that were never persisted.
	Synthetic bool `json:"synthetic"`
}

// OrderList is one page of a buyer's order history.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func viewFromModel(order *models.Order) *OrderView {
	items := order.Items
	if items == nil {
		items = []types.CartLine{}
	}
	return &OrderView{
		ID:                   order.ID.String(),
		Status:               order.Status,
		Items:                items,
		Subtotal:             order.Subtotal,
		Tax:                  order.Tax,
		TotalAmount:          order.TotalAmount,
		Currency:             order.Currency,
		ShippingAddress:      order.ShippingAddress,
		BillingAddress:       order.BillingAddress,
		PaymentMethodSummary: order.PaymentMethodSummary,
		CreatedAt:            order.CreatedAt,
	}
}
