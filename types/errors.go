package types

import (
	"errors"
	"fmt"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ErrorKind classifies a payment-flow failure. Every error that crosses a
// package boundary is wrapped in a FlowError carrying exactly one kind.
type ErrorKind string

const (
	ErrUnsupportedNetwork  ErrorKind = "unsupported_network"
	ErrWalletNotConnected  ErrorKind = "wallet_not_connected"
	ErrChainSwitchRejected ErrorKind = "chain_switch_rejected"
	ErrCatalogUnavailable  ErrorKind = "catalog_unavailable"
	ErrNoEligibleCurrency  ErrorKind = "no_eligible_currency"
	ErrPayoutQuoteFailed   ErrorKind = "payout_quote_failed"
	ErrTransactionFailed   ErrorKind = "transaction_execution_failed"
	ErrConfirmationTimeout ErrorKind = "confirmation_timeout"
	ErrTransactionReverted ErrorKind = "transaction_reverted"
	ErrUnknown             ErrorKind = "unknown"
)

// FlowError is the single error envelope of the library.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// FailedStep is the 1-based index of the planned transaction that
	// failed, set only for transaction_execution_failed.
	FailedStep int

	// Receipts holds the confirmations collected before the failure, in
	// plan order, set only for transaction_execution_failed.
	Receipts []*ethtypes.Receipt
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewFlowError creates an envelope without an underlying cause.
func NewFlowError(kind ErrorKind, message string) *FlowError {
	return &FlowError{Kind: kind, Message: message}
}

// WrapError creates an envelope around an underlying cause.
func WrapError(kind ErrorKind, message string, cause error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Cause: cause}
}

// Classify returns err as a *FlowError, wrapping anything not already
// classified as ErrUnknown so callers always see one stable shape.
func Classify(err error) *FlowError {
	if err == nil {
		return nil
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return &FlowError{Kind: ErrUnknown, Message: "unexpected error", Cause: err}
}

// DisplayMessage maps a kind to the short human-readable message shown in
// the confirmation step. The full cause goes to the error callback instead.
func (k ErrorKind) DisplayMessage() string {
	switch k {
	case ErrUnsupportedNetwork:
		return "This payment network is not supported."
	case ErrWalletNotConnected:
		return "Connect a wallet to continue."
	case ErrChainSwitchRejected:
		return "The network switch was rejected. Please approve it and retry."
	case ErrCatalogUnavailable:
		return "Could not load payment currencies. Please retry."
	case ErrNoEligibleCurrency:
		return "No configured currency is available for this payment."
	case ErrPayoutQuoteFailed:
		return "Failed to create payment. Please retry."
	case ErrTransactionFailed:
		return "A payment transaction failed. Please restart the payment."
	case ErrConfirmationTimeout:
		return "Timed out waiting for the transaction to confirm."
	case ErrTransactionReverted:
		return "The transaction was reverted on chain."
	default:
		return "Something went wrong. Please retry."
	}
}
