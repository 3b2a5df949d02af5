package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/toolyard/marketplace-backend/pkg/enums"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// Address is an entry in a signed-in user's address book.
type Address struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID    uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;index"`
	Type       enums.AddressType `gorm:"column:type;not null"`
	IsDefault  bool              `gorm:"column:is_default;not null;default:false"`
	FirstName  string            `gorm:"column:first_name;not null"`
	LastName   string            `gorm:"column:last_name;not null"`
	Street     string            `gorm:"column:street;not null"`
	AptOrSuite *string           `gorm:"column:apt_or_suite"`
	City       string            `gorm:"column:city;not null"`
	State      string            `gorm:"column:state;not null"`
	PostalCode string            `gorm:"column:postal_code;not null"`
	Country    string            `gorm:"column:country;not null;default:'US'"`
	Phone      *string           `gorm:"column:phone"`
	Email      *string           `gorm:"column:email"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Address) TableName() string { return "addresses" }

// Postal projects the stored entry onto the shared address shape.
func (a Address) Postal() types.PostalAddress {
	return types.PostalAddress{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Street:     a.Street,
		AptOrSuite: a.AptOrSuite,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		Email:      a.Email,
	}
}
