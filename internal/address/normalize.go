package address

import (
	"strings"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Key is the normalized identity of an address: street, city, state and postal code.
type Key struct {
	Street     string
	City       string
	State      string
	PostalCode string
}

func normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// KeyOf builds the dedup key for a postal address.
func KeyOf(a types.PostalAddress) Key {
	return Key{
		Street:     normalize(a.Street),
		City:       normalize(a.City),
		State:      normalize(a.State),
		PostalCode: normalize(a.PostalCode),
	}
}

func keyOfEntry(entry models.Address) Key {
	return KeyOf(entry.Postal())
}

// Equal reports whether a and b are the same address after normalization.
func Equal(a, b types.PostalAddress) bool {
	return KeyOf(a) == KeyOf(b)
}
