// Package types holds the data model shared by the payment-flow packages:
// networks, payment requests, settlement currencies, attempt results and the
// classified error envelope.
package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// CurrencyKind classifies a settlement currency.
type CurrencyKind string

const (
	CurrencyERC20 CurrencyKind = "ERC20"   // fungible token
	CurrencyETH   CurrencyKind = "ETH"     // native coin
	CurrencyFiat  CurrencyKind = "ISO4217" // fiat reference, not payable on chain
)

// ConversionCurrency is one settlement option returned by the
// conversion-routes endpoint. Entries are refreshed per fetch and never
// cached across network changes.
type ConversionCurrency struct {
	ID       string       `json:"id"`
	Symbol   string       `json:"symbol"`
	Name     string       `json:"name"`
	Decimals int          `json:"decimals"`
	Address  string       `json:"address"` // empty for the native asset
	Kind     CurrencyKind `json:"type"`
	Network  string       `json:"network"`
}

// FeeInfo optionally routes a percentage of the payment to a fee address.
type FeeInfo struct {
	FeePercentage string `json:"feePercentage"`
	FeeAddress    string `json:"feeAddress"`
}

// Validate checks the percentage is a decimal in [0, 100] and the address
// parses.
func (f *FeeInfo) Validate() error {
	pct, err := decimal.NewFromString(f.FeePercentage)
	if err != nil {
		return fmt.Errorf("invalid fee percentage: %w", err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("fee percentage must be between 0 and 100, got %s", pct)
	}
	if !common.IsHexAddress(f.FeeAddress) {
		return fmt.Errorf("invalid fee address: %s", f.FeeAddress)
	}
	return nil
}

// CustomerAddress is the postal address block of the payout API contract.
type CustomerAddress struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// CustomerInfo is forwarded verbatim to the payout API. All fields optional.
type CustomerInfo struct {
	FirstName string           `json:"firstName,omitempty"`
	LastName  string           `json:"lastName,omitempty"`
	Email     string           `json:"email,omitempty"`
	Address   *CustomerAddress `json:"address,omitempty"`
}

// PaymentRequest is the immutable record of one payment attempt. It is
// created when the user confirms payment and discarded when the attempt
// resolves.
type PaymentRequest struct {
	AmountInUSD       string
	PayerWallet       string
	RecipientWallet   string
	PaymentCurrencyID string
	FeeInfo           *FeeInfo
	CustomerInfo      *CustomerInfo
	Reference         string
}

// Validate checks the request before it is sent anywhere. The payer wallet
// is filled in by the orchestrator from the connected signer and is not
// required here.
func (r *PaymentRequest) Validate() error {
	amount, err := decimal.NewFromString(r.AmountInUSD)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero, got %s", amount)
	}
	if !common.IsHexAddress(r.RecipientWallet) {
		return fmt.Errorf("invalid recipient wallet: %s", r.RecipientWallet)
	}
	if r.PaymentCurrencyID == "" {
		return fmt.Errorf("payment currency is required")
	}
	if r.FeeInfo != nil {
		if err := r.FeeInfo.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PaymentAttemptResult is the terminal record of one orchestrator run:
// either a request id with the full ordered receipt list, or a classified
// error.
type PaymentAttemptResult struct {
	RequestID        string
	PaymentReference string
	Receipts         []*ethtypes.Receipt
	Err              *FlowError
}

// Success reports whether the attempt completed every planned transaction.
func (r PaymentAttemptResult) Success() bool {
	return r.Err == nil
}
