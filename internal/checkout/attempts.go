package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// ErrStaleAttempt means the attempt was not in the expected state when updated.
var ErrStaleAttempt = errors.New("payment attempt changed concurrently")

// AttemptRepository persists payment attempts.
type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	if tx == nil {
		return r
	}
	return &AttemptRepository{db: tx}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *models.PaymentIntent) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) FindByGatewayIntentID(ctx context.Context, gatewayIntentID string) (*models.PaymentIntent, error) {
	var attempt models.PaymentIntent
	err := r.db.WithContext(ctx).Where("gateway_intent_id = ?", gatewayIntentID).First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindReusable returns the newest ready attempt for the cart priced from the same contents.
func (r *AttemptRepository) FindReusable(ctx context.Context, cartID, fingerprint string) (*models.PaymentIntent, error) {
	var attempt models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND cart_fingerprint = ? AND state = ?", cartID, fingerprint, enums.AttemptStateReady).
		Order("created_at DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Transition moves an attempt from one state to the next. Extra columns are written in the same update.
// It returns ErrStaleAttempt when the row is no longer in from.
func (r *AttemptRepository) Transition(ctx context.Context, id uuid.UUID, from, to enums.AttemptState, extra map[string]any) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal attempt transition %s -> %s", from, to)
	}
	updates := map[string]any{"state": to}
	for key, value := range extra {
		updates[key] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleAttempt
	}
	return nil
}

// UpdateAddresses replaces the addresses captured on a ready attempt.
func (r *AttemptRepository) UpdateAddresses(ctx context.Context, id uuid.UUID, shipping, billing *types.PostalAddress) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{ID: id}).
		Where("state = ?", enums.AttemptStateReady).
		Select("shipping_address", "billing_address").
		Updates(&models.PaymentIntent{ShippingAddress: shipping, BillingAddress: billing})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleAttempt
	}
	return nil
}
