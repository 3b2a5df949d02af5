package cart

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/money"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Listing is the catalog data needed to put a listing into a cart.
type Listing struct {
	ID       string          `json:"listing_id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	ImageURL *string         `json:"image_url,omitempty"`
}

// Item is one cart line.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ListingID string          `json:"listing_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	ImageURL  *string         `json:"image_url,omitempty"`
}

// LineTotal returns unit price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return money.LineTotal(i.UnitPrice, i.Quantity)
}

// Cart holds the buyer's items. ItemCount and TotalAmount are derived and
// recomputed after every mutation.
type Cart struct {
	ID          string          `json:"id"`
	OwnerID     *uuid.UUID      `json:"owner_id,omitempty"`
	Items       []Item          `json:"items"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// New returns an empty cart.
func New(id string, ownerID *uuid.UUID) *Cart {
	c := &Cart{ID: id, OwnerID: ownerID, Items: []Item{}}
	c.recalculate()
	return c
}

// AddItem adds quantity of listing. A listing already in the cart has its quantity increased.
func (c *Cart) AddItem(listing Listing, quantity int) (Item, error) {
	listingID := strings.TrimSpace(listing.ID)
	if listingID == "" {
		return Item{}, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if listing.Price.IsNegative() {
		return Item{}, pkgerrors.New(pkgerrors.CodeValidation, "listing price must be non-negative")
	}
	quantity = clampQuantity(quantity)

	for idx := range c.Items {
		if c.Items[idx].ListingID == listingID {
			c.Items[idx].Quantity += quantity
			c.recalculate()
			return c.Items[idx], nil
		}
	}

	item := Item{
		ID:        uuid.New(),
		ListingID: listingID,
		Name:      strings.TrimSpace(listing.Name),
		UnitPrice: money.Round(listing.Price),
		Quantity:  quantity,
		ImageURL:  listing.ImageURL,
	}
	c.Items = append(c.Items, item)
	c.recalculate()
	return item, nil
}

// UpdateQuantity sets the quantity of an existing line; values below one are clamped to one.
func (c *Cart) UpdateQuantity(itemID uuid.UUID, quantity int) error {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	c.Items[idx].Quantity = clampQuantity(quantity)
	c.recalculate()
	return nil
}

// RemoveItem drops a line.
func (c *Cart) RemoveItem(itemID uuid.UUID) error {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.recalculate()
	return nil
}

// Empty removes every line but keeps the cart itself.
func (c *Cart) Empty() {
	c.Items = []Item{}
	c.recalculate()
}

// Contains reports whether listingID has a line in the cart.
func (c *Cart) Contains(listingID string) bool {
	listingID = strings.TrimSpace(listingID)
	for _, item := range c.Items {
		if item.ListingID == listingID {
			return true
		}
	}
	return false
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Lines projects the cart onto the frozen line shape used by checkout.
func (c *Cart) Lines() []types.CartLine {
	lines := make([]types.CartLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, types.CartLine{
			ListingID: item.ListingID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return lines
}

func (c *Cart) indexOf(itemID uuid.UUID) int {
	for idx, item := range c.Items {
		if item.ID == itemID {
			return idx
		}
	}
	return -1
}

func (c *Cart) recalculate() {
	if c.Items == nil {
		c.Items = []Item{}
	}
	count := 0
	for idx := range c.Items {
		c.Items[idx].Quantity = clampQuantity(c.Items[idx].Quantity)
		count += c.Items[idx].Quantity
	}
	c.ItemCount = count
	c.TotalAmount = money.Round(money.Sum(c.Items))
}

func clampQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	return quantity
}
