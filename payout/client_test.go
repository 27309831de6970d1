package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestnet/payflow/types"
)

func paymentRequestFixture() types.PaymentRequest {
	return types.PaymentRequest{
		AmountInUSD:       "10.00",
		PayerWallet:       "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		RecipientWallet:   "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		PaymentCurrencyID: "fUSDC-sepolia",
	}
}

func TestClient_CreatePayout(t *testing.T) {
	var captured struct {
		clientID string
		body     map[string]any
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/payouts", r.URL.Path)
		captured.clientID = r.Header.Get("x-client-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		json.NewEncoder(w).Encode(map[string]any{
			"requestId":        "req-123",
			"paymentReference": "ref-456",
			"transactions": []map[string]any{
				{"to": "0x5FbDB2315678afecb367f032d93F642f64180aa3", "data": "0x095ea7b3", "value": 0},
				{"to": "0x5FbDB2315678afecb367f032d93F642f64180aa3", "data": "0xa9059cbb", "value": map[string]string{"hex": "0x3e8"}},
			},
			"metadata": map[string]any{
				"stepsRequired":            2,
				"needsApproval":            true,
				"approvalTransactionIndex": 0,
				"paymentTransactionIndex":  1,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-abc", server.Client(), nil, nil)
	plan, err := client.CreatePayout(context.Background(), paymentRequestFixture())
	require.NoError(t, err)

	assert.Equal(t, "client-abc", captured.clientID)
	assert.Equal(t, "USD", captured.body["invoiceCurrency"])
	assert.Equal(t, "10.00", captured.body["amount"])
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", captured.body["payee"])

	assert.Equal(t, "req-123", plan.RequestID)
	assert.Equal(t, "ref-456", plan.PaymentReference)
	require.Len(t, plan.Transactions, 2)
	assert.EqualValues(t, 0, plan.Transactions[0].Value.Int64())
	assert.EqualValues(t, 1000, plan.Transactions[1].Value.Int64())
	assert.True(t, plan.Metadata.NeedsApproval)
	assert.Equal(t, 1, plan.Metadata.PaymentTransactionIndex)
}

func TestClient_CreatePayout_ServerMessagePassedThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "currency not convertible"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-abc", server.Client(), nil, nil)
	_, err := client.CreatePayout(context.Background(), paymentRequestFixture())
	require.Error(t, err)

	var fe *types.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, types.ErrPayoutQuoteFailed, fe.Kind)
	assert.Equal(t, "currency not convertible", fe.Message)
}

func TestClient_CreatePayout_GenericTransportMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-abc", server.Client(), nil, nil)
	_, err := client.CreatePayout(context.Background(), paymentRequestFixture())

	var fe *types.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, types.ErrPayoutQuoteFailed, fe.Kind)
	assert.Contains(t, fe.Message, "502")
}

func TestClient_CreatePayout_NoTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"requestId": "req-123"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-abc", server.Client(), nil, nil)
	_, err := client.CreatePayout(context.Background(), paymentRequestFixture())

	var fe *types.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, types.ErrPayoutQuoteFailed, fe.Kind)
	assert.Contains(t, fe.Message, "no transaction data")
}

func TestClient_CreatePayout_UnrecognizedValueDefaultsToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"requestId": "req-123",
			"transactions": []map[string]any{
				{"to": "0x5FbDB2315678afecb367f032d93F642f64180aa3", "data": "0x095ea7b3", "value": map[string]string{"type": "BigNumber"}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-abc", server.Client(), nil, nil)
	plan, err := client.CreatePayout(context.Background(), paymentRequestFixture())
	require.NoError(t, err)
	require.Len(t, plan.Transactions, 1)
	assert.EqualValues(t, 0, plan.Transactions[0].Value.Int64())
}

func TestClient_CreatePayout_InvalidDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"requestId": "req-123",
			"transactions": []map[string]any{
				{"to": "nowhere", "data": "0x", "value": 0},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "client-abc", server.Client(), nil, nil)
	_, err := client.CreatePayout(context.Background(), paymentRequestFixture())

	var fe *types.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, types.ErrPayoutQuoteFailed, fe.Kind)
}
