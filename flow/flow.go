// Package flow sequences the user-facing payment steps and owns the
// terminal success and error transitions, delegating execution to the
// payout orchestrator.
package flow

import (
	"context"
	"fmt"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/requestnet/payflow/catalog"
	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/types"
)

// Step is one user-facing stage of the payment flow.
type Step string

const (
	StepCurrencySelect Step = "currency-select"
	StepBuyerInfo      Step = "buyer-info"
	StepConfirmation   Step = "payment-confirmation"
	StepSuccess        Step = "payment-success"
)

// CurrencySource lists the settlement currencies for a network.
type CurrencySource interface {
	ListCurrencies(ctx context.Context, network string) ([]types.ConversionCurrency, error)
}

// Executor runs one payment attempt. Implemented by payout.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, req types.PaymentRequest) types.PaymentAttemptResult
}

// Callbacks is the two-channel notification contract surfaced to the
// embedding application, plus dismissal after success.
type Callbacks struct {
	OnPaymentSuccess func(requestID string, receipts []*ethtypes.Receipt)
	OnPaymentError   func(err *types.FlowError)
	OnComplete       func()
}

// Params is the immutable per-flow configuration, threaded explicitly into
// the flow instead of being looked up from ambient state.
type Params struct {
	AmountInUSD     string
	RecipientWallet string
	Network         string
	AllowedSymbols  []string
	FeeInfo         *types.FeeInfo
	Reference       string
	BuyerPrefill    *BuyerInfo
	Callbacks       Callbacks
}

// Flow is the payment state machine for one widget instance. One logical
// flow runs per instance; concurrent attempts are rejected by the executing
// latch.
type Flow struct {
	params   Params
	catalog  CurrencySource
	executor Executor
	log      logger.Logger

	mu         sync.Mutex
	step       Step
	eligible   []types.ConversionCurrency
	selected   *types.ConversionCurrency
	buyer      *BuyerInfo
	requestID  string
	paymentRef string
	receipts   []*ethtypes.Receipt
	lastErr    *types.FlowError
	executing  bool
}

func New(params Params, source CurrencySource, executor Executor, log logger.Logger) *Flow {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Flow{
		params:   params,
		catalog:  source,
		executor: executor,
		log:      log,
		step:     StepCurrencySelect,
		buyer:    params.BuyerPrefill,
	}
}

// Step returns the current user-facing stage.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// LastError returns the classified error shown in the current step, if any.
func (f *Flow) LastError() *types.FlowError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Executing reports whether a payment attempt is in flight.
func (f *Flow) Executing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executing
}

// LoadCurrencies fetches the settlement currencies and intersects them with
// the widget allow-list. A transport failure leaves the flow where it is so
// the user can retry manually. A non-empty allow-list with an empty
// intersection is a configuration mismatch, reported distinctly from an
// outage and not fixable by refetching.
func (f *Flow) LoadCurrencies(ctx context.Context) ([]types.ConversionCurrency, error) {
	routes, err := f.catalog.ListCurrencies(ctx, f.params.Network)
	if err != nil {
		fe := types.Classify(err)
		f.setError(fe)
		return nil, fe
	}

	eligible := catalog.Eligible(routes, f.params.AllowedSymbols)
	if len(f.params.AllowedSymbols) > 0 && len(eligible) == 0 {
		fe := types.NewFlowError(types.ErrNoEligibleCurrency,
			"none of the configured currencies are available on "+f.params.Network)
		f.setError(fe)
		return nil, fe
	}

	f.mu.Lock()
	f.eligible = eligible
	f.lastErr = nil
	f.mu.Unlock()
	return eligible, nil
}

// Currencies returns the eligible set from the last successful load.
func (f *Flow) Currencies() []types.ConversionCurrency {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eligible
}

// SelectCurrency picks one eligible currency and advances to profile
// capture. The selection is carried unchanged for the rest of the flow.
func (f *Flow) SelectCurrency(currencyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepCurrencySelect {
		return fmt.Errorf("cannot select currency during step %q", f.step)
	}
	for i := range f.eligible {
		if f.eligible[i].ID == currencyID {
			chosen := f.eligible[i]
			f.selected = &chosen
			f.step = StepBuyerInfo
			f.lastErr = nil
			return nil
		}
	}
	return fmt.Errorf("currency %q is not in the eligible set", currencyID)
}

// SubmitBuyerInfo validates the profile form and advances to confirmation.
func (f *Flow) SubmitBuyerInfo(info BuyerInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepBuyerInfo {
		return fmt.Errorf("cannot submit buyer info during step %q", f.step)
	}
	f.buyer = &info
	f.step = StepConfirmation
	f.lastErr = nil
	return nil
}

// Back returns to the previous step without losing entered data. It is a
// no-op at the first step and after success.
func (f *Flow) Back() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.executing {
		return
	}
	switch f.step {
	case StepConfirmation:
		f.step = StepBuyerInfo
	case StepBuyerInfo:
		f.step = StepCurrencySelect
	}
	f.lastErr = nil
}

// ConfirmPayment runs the payment attempt. Confirmation is only reachable
// with both a selected currency and a validated profile present; a second
// call while one attempt is in flight is rejected. On failure the flow
// stays in confirmation with selections intact so the user can retry.
func (f *Flow) ConfirmPayment(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepConfirmation {
		f.mu.Unlock()
		return fmt.Errorf("cannot confirm payment during step %q", f.step)
	}
	if f.selected == nil || f.buyer == nil {
		f.mu.Unlock()
		return fmt.Errorf("confirmation requires a selected currency and buyer info")
	}
	if f.executing {
		f.mu.Unlock()
		return fmt.Errorf("a payment attempt is already in flight")
	}
	f.executing = true
	req := types.PaymentRequest{
		AmountInUSD:       f.params.AmountInUSD,
		RecipientWallet:   f.params.RecipientWallet,
		PaymentCurrencyID: f.selected.ID,
		FeeInfo:           f.params.FeeInfo,
		CustomerInfo:      f.buyer.customerInfo(),
		Reference:         f.params.Reference,
	}
	f.mu.Unlock()

	result := f.executor.Execute(ctx, req)

	f.mu.Lock()
	f.executing = false
	if !result.Success() {
		f.lastErr = result.Err
		f.mu.Unlock()

		f.log.Warn("payment attempt failed", map[string]any{
			"kind":    string(result.Err.Kind),
			"message": result.Err.Message,
		})
		if f.params.Callbacks.OnPaymentError != nil {
			f.params.Callbacks.OnPaymentError(result.Err)
		}
		return result.Err
	}

	f.requestID = result.RequestID
	f.paymentRef = result.PaymentReference
	f.receipts = result.Receipts
	f.step = StepSuccess
	f.lastErr = nil
	f.mu.Unlock()

	f.log.Info("payment completed", map[string]any{
		"requestId": result.RequestID,
		"receipts":  len(result.Receipts),
	})
	if f.params.Callbacks.OnPaymentSuccess != nil {
		f.params.Callbacks.OnPaymentSuccess(result.RequestID, result.Receipts)
	}
	return nil
}

// Result returns the request id and ordered receipts after success.
func (f *Flow) Result() (string, []*ethtypes.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestID, f.receipts
}

// PaymentReference returns the payout reference issued with the plan.
func (f *Flow) PaymentReference() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paymentRef
}

// SelectedCurrency returns the currency carried by the flow, if chosen.
func (f *Flow) SelectedCurrency() *types.ConversionCurrency {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// Buyer returns the captured profile, if submitted.
func (f *Flow) Buyer() *BuyerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buyer
}

// Close dismisses the widget. Closing while a payment attempt is in flight
// is refused: a submitted transaction cannot be cancelled and abandoning
// its confirmation would leave the outcome unknown. Closing from success
// resets the whole flow (selections and profile discarded) and fires
// OnComplete; closing from earlier steps preserves in-progress state for
// the next open.
func (f *Flow) Close() error {
	f.mu.Lock()
	if f.executing {
		f.mu.Unlock()
		return fmt.Errorf("cannot close while a payment is executing")
	}

	fromSuccess := f.step == StepSuccess
	if fromSuccess {
		f.step = StepCurrencySelect
		f.eligible = nil
		f.selected = nil
		f.buyer = f.params.BuyerPrefill
		f.requestID = ""
		f.paymentRef = ""
		f.receipts = nil
		f.lastErr = nil
	}
	f.mu.Unlock()

	if fromSuccess && f.params.Callbacks.OnComplete != nil {
		f.params.Callbacks.OnComplete()
	}
	return nil
}

func (f *Flow) setError(err *types.FlowError) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}
