package flow

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/requestnet/payflow/types"
)

var validate = validator.New()

// BuyerAddress is the postal address block of the profile form. The fields
// are all-or-none: filling any one of them makes the rest required, so a
// partial address can never reach the payout API.
type BuyerAddress struct {
	Street     string `json:"street" validate:"required_with=City State PostalCode Country"`
	City       string `json:"city" validate:"required_with=Street State PostalCode Country"`
	State      string `json:"state" validate:"required_with=Street City PostalCode Country"`
	PostalCode string `json:"postalCode" validate:"required_with=Street City State Country"`
	Country    string `json:"country" validate:"required_with=Street City State PostalCode"`
}

// IsEmpty reports whether no address sub-field is filled.
func (a BuyerAddress) IsEmpty() bool {
	return a == BuyerAddress{}
}

// BuyerInfo is the profile captured between currency selection and
// confirmation.
type BuyerInfo struct {
	Email        string        `json:"email" validate:"required,email"`
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	BusinessName string        `json:"businessName"`
	Phone        string        `json:"phone" validate:"omitempty,e164"`
	Address      *BuyerAddress `json:"address,omitempty"`
}

// Validate applies the form rules: email required and shape-checked, phone
// optional but well-formed, address all-or-none.
func (b *BuyerInfo) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid buyer info: %w", err)
	}
	return nil
}

// customerInfo maps the validated profile onto the payout API contract.
func (b *BuyerInfo) customerInfo() *types.CustomerInfo {
	if b == nil {
		return nil
	}
	info := &types.CustomerInfo{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Email:     b.Email,
	}
	if b.Address != nil && !b.Address.IsEmpty() {
		info.Address = &types.CustomerAddress{
			Street:     b.Address.Street,
			City:       b.Address.City,
			State:      b.Address.State,
			PostalCode: b.Address.PostalCode,
			Country:    b.Address.Country,
		}
	}
	return info
}
