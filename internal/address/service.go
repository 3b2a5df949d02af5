package address

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the address book to checkout.
type Service interface {
	Defaults(ctx context.Context, ownerID uuid.UUID) (Defaults, error)
	SaveFromCheckout(ctx context.Context, ownerID uuid.UUID, addr types.PostalAddress, addressType enums.AddressType) (models.Address, error)
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

func (s *service) Defaults(ctx context.Context, ownerID uuid.UUID) (Defaults, error) {
	book, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return Defaults{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address book")
	}
	return ResolveDefaults(book), nil
}

// SaveFromCheckout records a checkout address in the owner's book without creating duplicates.
func (s *service) SaveFromCheckout(ctx context.Context, ownerID uuid.UUID, addr types.PostalAddress, addressType enums.AddressType) (models.Address, error) {
	if ownerID == uuid.Nil {
		return models.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	if !addressType.IsValid() {
		return models.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid address type")
	}
	if err := ValidateAddress(addr).AsError(); err != nil {
		return models.Address{}, err
	}

	var outcome SaveOutcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		book, err := repo.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		_, outcome = DedupeAndSave(book, ownerID, addr, addressType, s.now().UTC())
		switch {
		case outcome.Created:
			return repo.Create(ctx, &outcome.Entry)
		case outcome.Widened:
			return repo.UpdateType(ctx, outcome.Entry.ID, outcome.Entry.Type)
		}
		return nil
	})
	if err != nil {
		return models.Address{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save address")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"address_id": outcome.Entry.ID.String(),
		"created":    outcome.Created,
		"widened":    outcome.Widened,
	}), "address book updated from checkout")
	return outcome.Entry, nil
}
