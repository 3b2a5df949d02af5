package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Order is created exactly once per gateway payment intent.
type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID              *uuid.UUID          `gorm:"column:owner_id;type:uuid;index"`
	GuestEmail           *string             `gorm:"column:guest_email"`
	GatewayIntentID      string              `gorm:"column:gateway_intent_id;not null;uniqueIndex"`
	Items                []types.CartLine    `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                  decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	TotalAmount          decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency             string              `gorm:"column:currency;not null"`
	ShippingAddress      types.PostalAddress `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	BillingAddress       types.PostalAddress `gorm:"column:billing_address;type:jsonb;serializer:json;not null"`
	PaymentMethodSummary string              `gorm:"column:payment_method_summary"`
	Status               enums.OrderStatus   `gorm:"column:status;not null"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
