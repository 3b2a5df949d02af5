package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Store loads and saves a principal's cart.
type Store interface {
	Load(ctx context.Context, principal types.Principal) (*Cart, error)
	Save(ctx context.Context, principal types.Principal, c *Cart) error
}

// Service is the single entry point for cart reads and mutations.
type Service interface {
	Get(ctx context.Context, principal types.Principal) (*Cart, error)
	AddItem(ctx context.Context, principal types.Principal, listing Listing, quantity int) (*Cart, error)
	UpdateQuantity(ctx context.Context, principal types.Principal, itemID uuid.UUID, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, principal types.Principal, itemID uuid.UUID) (*Cart, error)
	EmptyCart(ctx context.Context, principal types.Principal) error
	EmptyCartBestEffort(ctx context.Context, principal types.Principal)
	IsItemInCart(ctx context.Context, principal types.Principal, listingID string) (bool, error)
}

type service struct {
	users  Store
	guests Store
	logg   *logger.Logger
}

// NewService routes signed-in principals to users and everyone else to guests.
func NewService(users Store, guests Store, logg *logger.Logger) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user cart store required")
	}
	if guests == nil {
		return nil, fmt.Errorf("guest cart store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{users: users, guests: guests, logg: logg}, nil
}

func (s *service) storeFor(principal types.Principal) (Store, error) {
	if !principal.IsGuest() {
		return s.users, nil
	}
	if principal.GuestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest device id is required")
	}
	return s.guests, nil
}

func (s *service) Get(ctx context.Context, principal types.Principal) (*Cart, error) {
	store, err := s.storeFor(principal)
	if err != nil {
		return nil, err
	}
	c, err := store.Load(ctx, principal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return c, nil
}

func (s *service) AddItem(ctx context.Context, principal types.Principal, listing Listing, quantity int) (*Cart, error) {
	return s.mutate(ctx, principal, func(c *Cart) error {
		_, err := c.AddItem(listing, quantity)
		return err
	})
}

func (s *service) UpdateQuantity(ctx context.Context, principal types.Principal, itemID uuid.UUID, quantity int) (*Cart, error) {
	return s.mutate(ctx, principal, func(c *Cart) error {
		return c.UpdateQuantity(itemID, quantity)
	})
}

func (s *service) RemoveItem(ctx context.Context, principal types.Principal, itemID uuid.UUID) (*Cart, error) {
	return s.mutate(ctx, principal, func(c *Cart) error {
		return c.RemoveItem(itemID)
	})
}

func (s *service) EmptyCart(ctx context.Context, principal types.Principal) error {
	_, err := s.mutate(ctx, principal, func(c *Cart) error {
		c.Empty()
		return nil
	})
	return err
}

// EmptyCartBestEffort empties the cart after a successful order. Failures are logged, never returned.
func (s *service) EmptyCartBestEffort(ctx context.Context, principal types.Principal) {
	if err := s.EmptyCart(ctx, principal); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "principal", principal.Key()), "failed to empty cart after order", err)
	}
}

func (s *service) IsItemInCart(ctx context.Context, principal types.Principal, listingID string) (bool, error) {
	c, err := s.Get(ctx, principal)
	if err != nil {
		return false, err
	}
	return c.Contains(listingID), nil
}

func (s *service) mutate(ctx context.Context, principal types.Principal, fn func(c *Cart) error) (*Cart, error) {
	store, err := s.storeFor(principal)
	if err != nil {
		return nil, err
	}
	c, err := store.Load(ctx, principal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, principal, c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return c, nil
}
