// Package payout requests transaction plans from the payout API and drives
// the signer through every planned transaction, in order, collecting
// confirmation receipts.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/metrics"
	"github.com/requestnet/payflow/types"
)

// invoiceCurrency is the fixed reference fiat every payout is denominated in.
const invoiceCurrency = "USD"

// Client issues payout quote requests. One invocation of the orchestrator
// performs exactly one quote; the client never retries.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
	log      logger.Logger
	metrics  metrics.Recorder
}

func NewClient(baseURL, clientID string, httpClient *http.Client, log logger.Logger, rec metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		http:     httpClient,
		log:      log,
		metrics:  rec,
	}
}

type payoutRequest struct {
	Amount          string              `json:"amount"`
	PayerWallet     string              `json:"payerWallet"`
	Payee           string              `json:"payee"`
	InvoiceCurrency string              `json:"invoiceCurrency"`
	PaymentCurrency string              `json:"paymentCurrency"`
	FeePercentage   string              `json:"feePercentage,omitempty"`
	FeeAddress      string              `json:"feeAddress,omitempty"`
	CustomerInfo    *types.CustomerInfo `json:"customerInfo,omitempty"`
	Reference       string              `json:"reference,omitempty"`
}

type wireTransaction struct {
	To    string          `json:"to"`
	Data  string          `json:"data"`
	Value json.RawMessage `json:"value"`
}

type payoutResponse struct {
	RequestID        string            `json:"requestId"`
	PaymentReference string            `json:"paymentReference"`
	Transactions     []wireTransaction `json:"transactions"`
	Metadata         PlanMetadata      `json:"metadata"`
}

type payoutErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreatePayout requests a transaction plan for the given payment. Non-2xx
// responses and unusable bodies are reported as payout_quote_failed,
// carrying the server-supplied message when one was decodable.
func (c *Client) CreatePayout(ctx context.Context, req types.PaymentRequest) (*TransactionPlan, error) {
	body := payoutRequest{
		Amount:          req.AmountInUSD,
		PayerWallet:     req.PayerWallet,
		Payee:           req.RecipientWallet,
		InvoiceCurrency: invoiceCurrency,
		PaymentCurrency: req.PaymentCurrencyID,
		CustomerInfo:    req.CustomerInfo,
		Reference:       req.Reference,
	}
	if req.FeeInfo != nil {
		body.FeePercentage = req.FeeInfo.FeePercentage
		body.FeeAddress = req.FeeInfo.FeeAddress
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapError(types.ErrPayoutQuoteFailed, "failed to encode payout request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/payouts", bytes.NewReader(payload))
	if err != nil {
		return nil, types.WrapError(types.ErrPayoutQuoteFailed, "failed to build payout request", err)
	}
	httpReq.Header.Set("x-client-id", c.clientID)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	c.metrics.ObserveLatency("payout_quote", time.Since(start), nil)
	if err != nil {
		return nil, types.WrapError(types.ErrPayoutQuoteFailed, "payout request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := fmt.Sprintf("payout request returned HTTP %d", resp.StatusCode)
		var errBody payoutErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			if errBody.Error != "" {
				message = errBody.Error
			} else if errBody.Message != "" {
				message = errBody.Message
			}
		}
		c.log.Warn("payout quote rejected", map[string]any{
			"status":  resp.StatusCode,
			"message": message,
		})
		return nil, types.NewFlowError(types.ErrPayoutQuoteFailed, message)
	}

	var quote payoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, types.WrapError(types.ErrPayoutQuoteFailed, "malformed payout response", err)
	}
	if len(quote.Transactions) == 0 {
		return nil, types.NewFlowError(types.ErrPayoutQuoteFailed,
			"no transaction data received from backend")
	}

	return c.buildPlan(quote)
}

func (c *Client) buildPlan(quote payoutResponse) (*TransactionPlan, error) {
	plan := &TransactionPlan{
		RequestID:        quote.RequestID,
		PaymentReference: quote.PaymentReference,
		Transactions:     make([]PlannedTransaction, 0, len(quote.Transactions)),
		Metadata:         quote.Metadata,
	}

	for i, wire := range quote.Transactions {
		if !common.IsHexAddress(wire.To) {
			return nil, types.NewFlowError(types.ErrPayoutQuoteFailed,
				fmt.Sprintf("transaction %d has invalid destination %q", i+1, wire.To))
		}

		var data []byte
		if wire.Data != "" {
			decoded, err := hexutil.Decode(wire.Data)
			if err != nil {
				return nil, types.WrapError(types.ErrPayoutQuoteFailed,
					fmt.Sprintf("transaction %d has invalid calldata", i+1), err)
			}
			data = decoded
		}

		value, recognized := NormalizeValue(wire.Value)
		if !recognized {
			c.log.Warn("unknown transaction value format, defaulting to 0", map[string]any{
				"step":  i + 1,
				"value": string(wire.Value),
			})
		}

		plan.Transactions = append(plan.Transactions, PlannedTransaction{
			To:    common.HexToAddress(wire.To),
			Data:  data,
			Value: value,
		})
	}

	return plan, nil
}
