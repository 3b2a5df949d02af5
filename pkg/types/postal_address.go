package types

import "strings"

// PostalAddress is the address shape shared by the address book, checkout sessions and orders.
type PostalAddress struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Street     string  `json:"street"`
	AptOrSuite *string `json:"apt_or_suite,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
}

// IsZero reports whether no street-level data was supplied.
func (a PostalAddress) IsZero() bool {
	return strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.PostalCode) == ""
}

// EmailOrEmpty dereferences the optional email.
func (a PostalAddress) EmailOrEmpty() string {
	if a.Email == nil {
		return ""
	}
	return strings.TrimSpace(*a.Email)
}
