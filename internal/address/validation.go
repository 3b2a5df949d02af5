package address

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

// FieldErrors maps a json field name to a user-facing message.
type FieldErrors map[string]string

var (
	usPostalPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	usPhonePattern  = regexp.MustCompile(`^(\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("us_postal", func(fl validator.FieldLevel) bool {
		return usPostalPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("us_phone", func(fl validator.FieldLevel) bool {
		return usPhonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

type addressForm struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required,us_postal"`
	Phone      string `json:"phone" validate:"omitempty,us_phone"`
	Email      string `json:"email" validate:"required,email"`
}

func formOf(a types.PostalAddress) addressForm {
	form := addressForm{
		FirstName:  strings.TrimSpace(a.FirstName),
		LastName:   strings.TrimSpace(a.LastName),
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Email:      a.EmailOrEmpty(),
	}
	if a.Phone != nil {
		form.Phone = strings.TrimSpace(*a.Phone)
	}
	return form
}

// ValidateAddress checks a single address. An empty result means the address is valid.
func ValidateAddress(a types.PostalAddress) FieldErrors {
	out := FieldErrors{}
	err := validate.Struct(formOf(a))
	if err == nil {
		return out
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["address"] = "is invalid"
		return out
	}
	for _, fieldErr := range errs {
		out[fieldErr.Field()] = message(fieldErr)
	}
	return out
}

// ValidateCheckoutAddresses validates the shipping address and, when it differs, the billing address.
func ValidateCheckoutAddresses(shipping types.PostalAddress, billing *types.PostalAddress, billingDiffers bool) FieldErrors {
	out := FieldErrors{}
	for field, msg := range ValidateAddress(shipping) {
		out["shipping."+field] = msg
	}
	if !billingDiffers {
		return out
	}
	if billing == nil {
		out["billing"] = "is required"
		return out
	}
	for field, msg := range ValidateAddress(*billing) {
		out["billing."+field] = msg
	}
	return out
}

// AsError converts field errors into a validation error, or nil when there are none.
func (f FieldErrors) AsError() error {
	if len(f) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string(f))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "us_postal":
		return "must be a 5-digit ZIP code or ZIP+4"
	case "us_phone":
		return "must be a 10-digit US phone number"
	}
	return "is invalid"
}
