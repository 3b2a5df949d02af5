package address

import (
	"time"

	"github.com/google/uuid"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Defaults holds the pre-fill candidates for a checkout. Nil means no pre-fill.
type Defaults struct {
	Shipping *models.Address
	Billing  *models.Address
}

// ResolveDefaults picks the shipping and billing pre-fill from an address book.
// An explicit default wins; when several qualify the most recently created is used.
// Without a default any address usable for the type is taken.
func ResolveDefaults(book []models.Address) Defaults {
	return Defaults{
		Shipping: pick(book, enums.AddressTypeShipping),
		Billing:  pick(book, enums.AddressTypeBilling),
	}
}

func pick(book []models.Address, want enums.AddressType) *models.Address {
	var bestDefault, bestAny *models.Address
	for idx := range book {
		entry := &book[idx]
		if !entry.Type.Covers(want) {
			continue
		}
		if entry.IsDefault && newer(entry, bestDefault) {
			bestDefault = entry
		}
		if newer(entry, bestAny) {
			bestAny = entry
		}
	}
	if bestDefault != nil {
		copied := *bestDefault
		return &copied
	}
	if bestAny != nil {
		copied := *bestAny
		return &copied
	}
	return nil
}

func newer(candidate, current *models.Address) bool {
	if current == nil {
		return true
	}
	return candidate.CreatedAt.After(current.CreatedAt)
}

// SaveOutcome describes what DedupeAndSave did.
type SaveOutcome struct {
	Entry   models.Address
	Created bool
	Widened bool
}

// DedupeAndSave merges addr into book. A normalized match is never duplicated; when it was stored
// for the other purpose its type is widened to both. A new entry becomes the default only when the
// book has no default for the requested type.
func DedupeAndSave(book []models.Address, ownerID uuid.UUID, addr types.PostalAddress, requested enums.AddressType, now time.Time) ([]models.Address, SaveOutcome) {
	key := KeyOf(addr)
	for idx := range book {
		if keyOfEntry(book[idx]) != key {
			continue
		}
		outcome := SaveOutcome{}
		if book[idx].Type != requested && book[idx].Type != enums.AddressTypeBoth {
			book[idx].Type = enums.AddressTypeBoth
			outcome.Widened = true
		}
		outcome.Entry = book[idx]
		return book, outcome
	}

	entry := models.Address{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Type:       requested,
		IsDefault:  !hasDefault(book, requested),
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Street:     addr.Street,
		AptOrSuite: addr.AptOrSuite,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    countryOrDefault(addr.Country),
		Phone:      addr.Phone,
		Email:      addr.Email,
		CreatedAt:  now,
	}
	book = append(book, entry)
	return book, SaveOutcome{Entry: entry, Created: true}
}

func hasDefault(book []models.Address, want enums.AddressType) bool {
	for _, entry := range book {
		if !entry.IsDefault {
			continue
		}
		if entry.Type.Covers(want) {
			return true
		}
		if want == enums.AddressTypeBoth && entry.Type != enums.AddressTypeBoth {
			return true
		}
	}
	return false
}

func countryOrDefault(country string) string {
	if country == "" {
		return "US"
	}
	return country
}
