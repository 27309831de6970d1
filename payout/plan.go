package payout

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PlannedTransaction is one on-chain call of a payout plan, with its wire
// value already normalized to a big integer.
type PlannedTransaction struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// PlanMetadata describes the shape of the plan: how many steps it has and
// which step is the token approval versus the actual payment.
type PlanMetadata struct {
	StepsRequired            int  `json:"stepsRequired"`
	NeedsApproval            bool `json:"needsApproval"`
	ApprovalTransactionIndex int  `json:"approvalTransactionIndex"`
	PaymentTransactionIndex  int  `json:"paymentTransactionIndex"`
}

// TransactionPlan is the server-issued plan for one payment attempt. The
// transaction order is the required execution order: an approval always
// precedes its dependent payment and must never be reordered.
type TransactionPlan struct {
	RequestID        string
	PaymentReference string
	Transactions     []PlannedTransaction
	Metadata         PlanMetadata
}

// hexWrappedValue is the `{ "hex": "0x..." }` big-integer wire shape some
// backends emit for token amounts.
type hexWrappedValue struct {
	Hex string `json:"hex"`
}

// NormalizeValue converts a wire transaction value to a big integer. The
// value may arrive as a plain JSON number, a decimal (or 0x-hex) string, or
// a {hex} object. The second return is false for an unrecognized shape, in
// which case the value defaults to zero: some settlement currencies
// legitimately carry no on-chain value component, so this is a warning, not
// a failure.
func NormalizeValue(raw json.RawMessage) (*big.Int, bool) {
	if len(raw) == 0 {
		return new(big.Int), false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if v, err := hexutil.DecodeBig(asString); err == nil {
			return v, true
		}
		if v, ok := new(big.Int).SetString(asString, 10); ok {
			return v, true
		}
		return new(big.Int), false
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if v, ok := new(big.Int).SetString(asNumber.String(), 10); ok {
			return v, true
		}
		return new(big.Int), false
	}

	var wrapped hexWrappedValue
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Hex != "" {
		if v, err := hexutil.DecodeBig(wrapped.Hex); err == nil {
			return v, true
		}
	}

	return new(big.Int), false
}
