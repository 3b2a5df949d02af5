package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository persists signed-in buyers' carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByOwner loads the owner's cart with items in insertion order.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("owner_id = ?", ownerID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts an empty cart row.
func (r *Repository) Create(ctx context.Context, record *models.Cart) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Items").Create(record).Error
}

// ReplaceItems swaps the cart's items for the provided set.
func (r *Repository) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for idx := range items {
		items[idx].CartID = cartID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// PersistentStore keeps user carts in the database.
type PersistentStore struct {
	repo *Repository
	tx   txRunner
}

func NewPersistentStore(repo *Repository, tx txRunner) (*PersistentStore, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &PersistentStore{repo: repo, tx: tx}, nil
}

// Load returns the user's cart, creating an empty one on first use.
func (s *PersistentStore) Load(ctx context.Context, principal types.Principal) (*Cart, error) {
	if principal.IsGuest() {
		return nil, fmt.Errorf("persistent cart requires a signed-in user")
	}
	ownerID := *principal.UserID

	record, err := s.repo.FindByOwner(ctx, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = &models.Cart{OwnerID: ownerID}
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("create cart: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return fromRecord(record), nil
}

// Save writes the cart's items atomically.
func (s *PersistentStore) Save(ctx context.Context, principal types.Principal, c *Cart) error {
	if principal.IsGuest() {
		return fmt.Errorf("persistent cart requires a signed-in user")
	}
	cartID, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("invalid cart id %q: %w", c.ID, err)
	}
	items := toRecordItems(c.Items)
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReplaceItems(ctx, cartID, items)
	})
}

func fromRecord(record *models.Cart) *Cart {
	ownerID := record.OwnerID
	c := New(record.ID.String(), &ownerID)
	for _, item := range record.Items {
		c.Items = append(c.Items, Item{
			ID:        item.ID,
			ListingID: item.ListingID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	c.recalculate()
	return c
}

func toRecordItems(items []Item) []models.CartItem {
	out := make([]models.CartItem, 0, len(items))
	for idx, item := range items {
		out = append(out, models.CartItem{
			ID:        item.ID,
			ListingID: item.ListingID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
			Position:  idx,
		})
	}
	return out
}
