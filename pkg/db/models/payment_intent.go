package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// PaymentIntent is one payment attempt against a frozen cart snapshot.
// The amount never changes after creation; a different cart needs a new row.
type PaymentIntent struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	GatewayIntentID string               `gorm:"column:gateway_intent_id;not null;uniqueIndex"`
	ClientSecret    string               `gorm:"column:client_secret;not null"`
	CartID          string               `gorm:"column:cart_id;not null;index"`
	OwnerID         *uuid.UUID           `gorm:"column:owner_id;type:uuid"`
	GuestEmail      *string              `gorm:"column:guest_email"`
	GuestDeviceID   *string              `gorm:"column:guest_device_id"`
	Subtotal        decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax             decimal.Decimal      `gorm:"column:tax;type:numeric(12,2);not null"`
	Amount          decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	AmountCents     int64                `gorm:"column:amount_cents;not null"`
	Currency        string               `gorm:"column:currency;not null"`
	State           enums.AttemptState   `gorm:"column:state;not null"`
	CartFingerprint string               `gorm:"column:cart_fingerprint;not null"`
	Snapshot        []types.CartLine     `gorm:"column:snapshot;type:jsonb;serializer:json;not null"`
	ShippingAddress *types.PostalAddress `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  *types.PostalAddress `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Synthetic       bool                 `gorm:"column:synthetic;not null;default:false"`
	FailureCode     *string              `gorm:"column:failure_code"`
	FailureMessage  *string              `gorm:"column:failure_message"`
	OrderID         *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }
