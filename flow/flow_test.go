package flow

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestnet/payflow/types"
)

type stubSource struct {
	routes []types.ConversionCurrency
	err    error
	calls  int
}

func (s *stubSource) ListCurrencies(_ context.Context, _ string) ([]types.ConversionCurrency, error) {
	s.calls++
	return s.routes, s.err
}

type stubExecutor struct {
	result types.PaymentAttemptResult
	got    types.PaymentRequest
	calls  int

	// block lets a test hold the executor mid-attempt.
	block chan struct{}
}

func (e *stubExecutor) Execute(_ context.Context, req types.PaymentRequest) types.PaymentAttemptResult {
	e.calls++
	e.got = req
	if e.block != nil {
		<-e.block
	}
	return e.result
}

func testRoutes() []types.ConversionCurrency {
	return []types.ConversionCurrency{
		{ID: "fUSDC-sepolia", Symbol: "fUSDC", Network: "sepolia", Decimals: 6, Kind: types.CurrencyERC20},
		{ID: "fUSDT-sepolia", Symbol: "fUSDT", Network: "sepolia", Decimals: 6, Kind: types.CurrencyERC20},
	}
}

func testParams(cb Callbacks) Params {
	return Params{
		AmountInUSD:     "25.00",
		RecipientWallet: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Network:         "sepolia",
		Callbacks:       cb,
	}
}

func successResult(receipts int) types.PaymentAttemptResult {
	result := types.PaymentAttemptResult{
		RequestID:        "req-123",
		PaymentReference: "ref-456",
	}
	for i := 0; i < receipts; i++ {
		result.Receipts = append(result.Receipts, &ethtypes.Receipt{
			Status: ethtypes.ReceiptStatusSuccessful,
			TxHash: common.BigToHash(common.Big1),
		})
	}
	return result
}

func buyerFixture() BuyerInfo {
	return BuyerInfo{Email: "payer@example.com", FirstName: "Ada"}
}

// advanceToConfirmation walks a fresh flow to the confirmation step.
func advanceToConfirmation(t *testing.T, f *Flow) {
	t.Helper()
	_, err := f.LoadCurrencies(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SelectCurrency("fUSDC-sepolia"))
	require.NoError(t, f.SubmitBuyerInfo(buyerFixture()))
	require.Equal(t, StepConfirmation, f.Step())
}

func TestFlow_HappyPath(t *testing.T) {
	var gotRequestID string
	var gotReceipts int
	exec := &stubExecutor{result: successResult(2)}
	f := New(testParams(Callbacks{
		OnPaymentSuccess: func(requestID string, receipts []*ethtypes.Receipt) {
			gotRequestID = requestID
			gotReceipts = len(receipts)
		},
	}), &stubSource{routes: testRoutes()}, exec, nil)

	require.Equal(t, StepCurrencySelect, f.Step())
	advanceToConfirmation(t, f)

	require.NoError(t, f.ConfirmPayment(context.Background()))
	assert.Equal(t, StepSuccess, f.Step())

	requestID, receipts := f.Result()
	assert.Equal(t, "req-123", requestID)
	assert.Len(t, receipts, 2)
	assert.Equal(t, "ref-456", f.PaymentReference())
	assert.Equal(t, "req-123", gotRequestID)
	assert.Equal(t, 2, gotReceipts)

	assert.Equal(t, "fUSDC-sepolia", exec.got.PaymentCurrencyID)
	assert.Equal(t, "25.00", exec.got.AmountInUSD)
	require.NotNil(t, exec.got.CustomerInfo)
	assert.Equal(t, "payer@example.com", exec.got.CustomerInfo.Email)
}

func TestFlow_ConfirmationUnreachableEarly(t *testing.T) {
	f := New(testParams(Callbacks{}), &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)

	err := f.ConfirmPayment(context.Background())
	require.Error(t, err)

	_, err = f.LoadCurrencies(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SelectCurrency("fUSDC-sepolia"))

	// Still in profile capture, so confirmation is rejected.
	require.Error(t, f.ConfirmPayment(context.Background()))
	assert.Equal(t, StepBuyerInfo, f.Step())
}

func TestFlow_CatalogOutageKeepsCurrencySelect(t *testing.T) {
	source := &stubSource{err: types.NewFlowError(types.ErrCatalogUnavailable, "conversion routes request failed")}
	f := New(testParams(Callbacks{}), source, &stubExecutor{}, nil)

	_, err := f.LoadCurrencies(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepCurrencySelect, f.Step())
	require.NotNil(t, f.LastError())
	assert.Equal(t, types.ErrCatalogUnavailable, f.LastError().Kind)

	// A manual retry against a recovered catalog clears the error.
	source.err = nil
	source.routes = testRoutes()
	eligible, err := f.LoadCurrencies(context.Background())
	require.NoError(t, err)
	assert.Len(t, eligible, 2)
	assert.Nil(t, f.LastError())
	assert.Equal(t, 2, source.calls)
}

func TestFlow_AllowListMismatchIsNotAnOutage(t *testing.T) {
	params := testParams(Callbacks{})
	params.AllowedSymbols = []string{"DAI"}
	f := New(params, &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)

	_, err := f.LoadCurrencies(context.Background())
	require.Error(t, err)

	var fe *types.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, types.ErrNoEligibleCurrency, fe.Kind)
}

func TestFlow_SelectCurrencyRejectsUnknownID(t *testing.T) {
	f := New(testParams(Callbacks{}), &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)
	_, err := f.LoadCurrencies(context.Background())
	require.NoError(t, err)

	require.Error(t, f.SelectCurrency("DAI-mainnet"))
	assert.Equal(t, StepCurrencySelect, f.Step())
}

func TestFlow_SubmitBuyerInfoValidation(t *testing.T) {
	f := New(testParams(Callbacks{}), &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)
	_, err := f.LoadCurrencies(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SelectCurrency("fUSDC-sepolia"))

	t.Run("email required", func(t *testing.T) {
		require.Error(t, f.SubmitBuyerInfo(BuyerInfo{}))
		assert.Equal(t, StepBuyerInfo, f.Step())
	})

	t.Run("partial address rejected", func(t *testing.T) {
		info := buyerFixture()
		info.Address = &BuyerAddress{City: "Lisbon"}
		require.Error(t, f.SubmitBuyerInfo(info))
		assert.Equal(t, StepBuyerInfo, f.Step())
	})

	t.Run("malformed phone rejected", func(t *testing.T) {
		info := buyerFixture()
		info.Phone = "555-0100"
		require.Error(t, f.SubmitBuyerInfo(info))
	})

	t.Run("complete profile advances", func(t *testing.T) {
		info := buyerFixture()
		info.Phone = "+351915550100"
		info.Address = &BuyerAddress{
			Street: "1 Rua Augusta", City: "Lisbon", State: "Lisboa",
			PostalCode: "1100-048", Country: "PT",
		}
		require.NoError(t, f.SubmitBuyerInfo(info))
		assert.Equal(t, StepConfirmation, f.Step())
	})
}

func TestFlow_FailureStaysInConfirmation(t *testing.T) {
	var gotKind types.ErrorKind
	exec := &stubExecutor{result: types.PaymentAttemptResult{
		Err: &types.FlowError{
			Kind:       types.ErrTransactionFailed,
			Message:    "transaction 2 of 2 failed at confirm",
			FailedStep: 2,
		},
	}}
	f := New(testParams(Callbacks{
		OnPaymentError: func(err *types.FlowError) { gotKind = err.Kind },
	}), &stubSource{routes: testRoutes()}, exec, nil)
	advanceToConfirmation(t, f)

	err := f.ConfirmPayment(context.Background())
	require.Error(t, err)

	assert.Equal(t, StepConfirmation, f.Step())
	assert.Equal(t, types.ErrTransactionFailed, gotKind)
	require.NotNil(t, f.LastError())
	assert.Equal(t, 2, f.LastError().FailedStep)

	// Selections survive the failure so the user can retry.
	require.NotNil(t, f.SelectedCurrency())
	assert.Equal(t, "fUSDC-sepolia", f.SelectedCurrency().ID)
	require.NotNil(t, f.Buyer())
	assert.False(t, f.Executing())

	// A retry reuses the same selections.
	exec.result = successResult(1)
	require.NoError(t, f.ConfirmPayment(context.Background()))
	assert.Equal(t, StepSuccess, f.Step())
	assert.Equal(t, 2, exec.calls)
}

func TestFlow_BackPreservesData(t *testing.T) {
	f := New(testParams(Callbacks{}), &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)
	advanceToConfirmation(t, f)

	f.Back()
	assert.Equal(t, StepBuyerInfo, f.Step())
	require.NotNil(t, f.SelectedCurrency())

	f.Back()
	assert.Equal(t, StepCurrencySelect, f.Step())
	require.NotNil(t, f.Buyer())

	// Already at the first step.
	f.Back()
	assert.Equal(t, StepCurrencySelect, f.Step())
}

func TestFlow_ExecutingLatch(t *testing.T) {
	exec := &stubExecutor{
		result: successResult(1),
		block:  make(chan struct{}),
	}
	f := New(testParams(Callbacks{}), &stubSource{routes: testRoutes()}, exec, nil)
	advanceToConfirmation(t, f)

	done := make(chan error, 1)
	go func() { done <- f.ConfirmPayment(context.Background()) }()

	for !f.Executing() {
		time.Sleep(time.Millisecond)
	}

	require.Error(t, f.ConfirmPayment(context.Background()))
	require.Error(t, f.Close())

	close(exec.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, StepSuccess, f.Step())
}

func TestFlow_CloseFromSuccessResets(t *testing.T) {
	completed := false
	f := New(testParams(Callbacks{
		OnComplete: func() { completed = true },
	}), &stubSource{routes: testRoutes()}, &stubExecutor{result: successResult(1)}, nil)
	advanceToConfirmation(t, f)
	require.NoError(t, f.ConfirmPayment(context.Background()))

	require.NoError(t, f.Close())
	assert.True(t, completed)
	assert.Equal(t, StepCurrencySelect, f.Step())
	assert.Nil(t, f.SelectedCurrency())
	assert.Nil(t, f.Buyer())
	requestID, receipts := f.Result()
	assert.Empty(t, requestID)
	assert.Empty(t, receipts)
	assert.Empty(t, f.PaymentReference())
}

func TestFlow_CloseMidFlowPreservesState(t *testing.T) {
	completed := false
	f := New(testParams(Callbacks{
		OnComplete: func() { completed = true },
	}), &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)
	advanceToConfirmation(t, f)

	require.NoError(t, f.Close())
	assert.False(t, completed)
	assert.Equal(t, StepConfirmation, f.Step())
	require.NotNil(t, f.SelectedCurrency())
	require.NotNil(t, f.Buyer())
}

func TestFlow_PrefillSeedsProfile(t *testing.T) {
	prefill := buyerFixture()
	params := testParams(Callbacks{})
	params.BuyerPrefill = &prefill
	f := New(params, &stubSource{routes: testRoutes()}, &stubExecutor{}, nil)

	require.NotNil(t, f.Buyer())
	assert.Equal(t, "payer@example.com", f.Buyer().Email)
}
