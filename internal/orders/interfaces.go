package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/pagination"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateOnce inserts order unless one already exists for its gateway intent, in which case the
	// existing row is returned with created=false.
	CreateOnce(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayIntentID(ctx context.Context, gatewayIntentID string) (*models.Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
}

// Reader serves the order confirmation page and order history.
type Reader interface {
	LoadOrder(ctx context.Context, orderID string, principal types.Principal) (*OrderView, error)
	ListOrders(ctx context.Context, principal types.Principal, params pagination.Params) (*OrderList, error)
}
