// Package receipt assembles the finalized payment record handed to the
// embedder's rendering layer. The core never renders it; the record is the
// boundary artifact behind the downloadable receipt.
package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/requestnet/payflow/catalog"
	"github.com/requestnet/payflow/flow"
	"github.com/requestnet/payflow/types"
)

// TransactionSummary is the per-transaction slice of the record.
type TransactionSummary struct {
	Hash        string `json:"hash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Record is the finalized payment record.
type Record struct {
	ReceiptNumber    string                   `json:"receiptNumber"`
	RequestID        string                   `json:"requestId"`
	PaymentReference string                   `json:"paymentReference,omitempty"`
	IssuedAt         time.Time                `json:"issuedAt"`
	AmountInUSD      string                   `json:"amountInUsd"`
	FeeInUSD         string                   `json:"feeInUsd,omitempty"`
	PayerWallet      string                   `json:"payerWallet"`
	RecipientWallet  string                   `json:"recipientWallet"`
	Currency         types.ConversionCurrency `json:"currency"`
	CurrencySymbol   string                   `json:"currencySymbol"`
	Buyer            *flow.BuyerInfo          `json:"buyer,omitempty"`
	Transactions     []TransactionSummary     `json:"transactions"`
}

// Input bundles everything the assembler needs from a resolved flow.
type Input struct {
	RequestID        string
	PaymentReference string
	AmountInUSD      string
	PayerWallet      string
	RecipientWallet  string
	FeeInfo          *types.FeeInfo
	Currency         types.ConversionCurrency
	Buyer            *flow.BuyerInfo
	Receipts         []*ethtypes.Receipt
}

// Assemble builds the record from a successful payment attempt.
func Assemble(in Input) *Record {
	now := time.Now().UTC()

	record := &Record{
		ReceiptNumber:    fmt.Sprintf("RN-%s-%s", now.Format("20060102"), shortID(in.RequestID)),
		RequestID:        in.RequestID,
		PaymentReference: in.PaymentReference,
		IssuedAt:         now,
		AmountInUSD:      in.AmountInUSD,
		PayerWallet:      in.PayerWallet,
		RecipientWallet:  in.RecipientWallet,
		Currency:         in.Currency,
		CurrencySymbol:   catalog.DisplaySymbol(in.Currency.Symbol),
		Buyer:            in.Buyer,
		Transactions:     make([]TransactionSummary, 0, len(in.Receipts)),
	}

	if fee := feeAmount(in.AmountInUSD, in.FeeInfo); fee != "" {
		record.FeeInUSD = fee
	}

	for _, r := range in.Receipts {
		summary := TransactionSummary{
			Hash:    r.TxHash.Hex(),
			GasUsed: r.GasUsed,
		}
		if r.BlockNumber != nil {
			summary.BlockNumber = r.BlockNumber.Uint64()
		}
		record.Transactions = append(record.Transactions, summary)
	}

	return record
}

// ExportJSON renders the record as the downloadable artifact.
func (r *Record) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// feeAmount computes amount * feePercentage / 100, rounded to cents.
func feeAmount(amount string, fee *types.FeeInfo) string {
	if fee == nil || fee.FeePercentage == "" {
		return ""
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return ""
	}
	pct, err := decimal.NewFromString(fee.FeePercentage)
	if err != nil {
		return ""
	}
	return amt.Mul(pct).Div(decimal.NewFromInt(100)).Round(2).String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
