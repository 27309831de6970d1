package payout

import (
	"context"
	"fmt"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/metrics"
	"github.com/requestnet/payflow/signer"
	"github.com/requestnet/payflow/types"
)

// Quoter is the slice of the payout client the orchestrator needs; it lets
// tests substitute a canned plan.
type Quoter interface {
	CreatePayout(ctx context.Context, req types.PaymentRequest) (*TransactionPlan, error)
}

// Orchestrator executes one payment attempt end to end: precondition
// checks, chain switch, one payout quote, then the strictly ordered
// send-and-confirm loop over the plan.
type Orchestrator struct {
	quoter  Quoter
	signer  signer.Signer
	chain   types.ChainDescriptor
	log     logger.Logger
	metrics metrics.Recorder
}

func NewOrchestrator(quoter Quoter, s signer.Signer, chain types.ChainDescriptor, log logger.Logger, rec metrics.Recorder) *Orchestrator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		quoter:  quoter,
		signer:  s,
		chain:   chain,
		log:     log,
		metrics: rec,
	}
}

// Execute runs one payment attempt. It performs exactly one payout quote
// and never re-quotes on transaction failure: a stale quote may carry an
// expired plan, so the caller must restart the whole flow instead.
func (o *Orchestrator) Execute(ctx context.Context, req types.PaymentRequest) types.PaymentAttemptResult {
	network := o.chain.Network.String()

	address, ok := o.signer.Address()
	if !o.signer.Connected() || !ok {
		return o.fail(network, types.NewFlowError(types.ErrWalletNotConnected, "wallet not connected"))
	}
	req.PayerWallet = address.Hex()

	if err := o.signer.SwitchChain(ctx, o.chain); err != nil {
		return o.fail(network, types.Classify(err))
	}

	if err := req.Validate(); err != nil {
		return o.fail(network, types.WrapError(types.ErrPayoutQuoteFailed, "invalid payment request", err))
	}

	plan, err := o.quoter.CreatePayout(ctx, req)
	if err != nil {
		return o.fail(network, types.Classify(err))
	}

	o.log.Info("executing transaction plan", map[string]any{
		"requestId": plan.RequestID,
		"steps":     len(plan.Transactions),
		"approval":  plan.Metadata.NeedsApproval,
	})

	receipts, err := o.runPlan(ctx, plan)
	if err != nil {
		return o.fail(network, types.Classify(err))
	}

	o.metrics.IncCounter("payment_success", map[string]string{"network": network})
	return types.PaymentAttemptResult{
		RequestID:        plan.RequestID,
		PaymentReference: plan.PaymentReference,
		Receipts:         receipts,
	}
}

// runPlan sends each planned transaction in order, waiting for its
// confirmation before sending the next. The serialization is mandatory:
// submitting an approval and its dependent payment concurrently can get the
// payment rejected or leave it using a stale allowance.
func (o *Orchestrator) runPlan(ctx context.Context, plan *TransactionPlan) ([]*ethtypes.Receipt, error) {
	receipts := make([]*ethtypes.Receipt, 0, len(plan.Transactions))

	for i, tx := range plan.Transactions {
		step := i + 1

		start := time.Now()
		hash, err := o.signer.SendTransaction(ctx, signer.TxParams{
			To:    tx.To,
			Data:  tx.Data,
			Value: tx.Value,
		})
		if err != nil {
			return nil, o.stepFailure(plan, step, receipts, "send", err)
		}
		o.log.Debug("transaction submitted", map[string]any{
			"requestId": plan.RequestID,
			"step":      step,
			"hash":      hash.Hex(),
		})

		receipt, err := o.signer.WaitForConfirmation(ctx, hash)
		if err != nil {
			return nil, o.stepFailure(plan, step, receipts, "confirm", err)
		}
		o.metrics.ObserveLatency("transaction_confirmed", time.Since(start),
			map[string]string{"network": o.chain.Network.String()})

		receipts = append(receipts, receipt)
	}

	return receipts, nil
}

// stepFailure wraps a send or confirmation error with the failed step index
// and the receipts already collected, so the caller can tell the user which
// steps completed. Remaining steps are never attempted.
func (o *Orchestrator) stepFailure(plan *TransactionPlan, step int, receipts []*ethtypes.Receipt, phase string, cause error) *types.FlowError {
	o.log.Error("transaction plan aborted", map[string]any{
		"requestId": plan.RequestID,
		"step":      step,
		"of":        len(plan.Transactions),
		"phase":     phase,
	})
	return &types.FlowError{
		Kind:       types.ErrTransactionFailed,
		Message:    fmt.Sprintf("transaction %d of %d failed at %s", step, len(plan.Transactions), phase),
		Cause:      cause,
		FailedStep: step,
		Receipts:   receipts,
	}
}

func (o *Orchestrator) fail(network string, err *types.FlowError) types.PaymentAttemptResult {
	o.metrics.IncCounter("payment_failure", map[string]string{"network": network})
	return types.PaymentAttemptResult{Err: err}
}
