// Package payflow drives a buyer through currency selection, profile
// capture and on-chain payment execution against the payout API, reporting
// a terminal success with a receipt record or a classified failure.
package payflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"

	"github.com/requestnet/payflow/catalog"
	"github.com/requestnet/payflow/flow"
	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/metrics"
	"github.com/requestnet/payflow/payout"
	"github.com/requestnet/payflow/receipt"
	"github.com/requestnet/payflow/signer"
	"github.com/requestnet/payflow/types"
	"github.com/requestnet/payflow/utils"
)

// DefaultAPIBaseURL is the production payout API endpoint.
const DefaultAPIBaseURL = "https://api.request.network"

var validate = validator.New()

// Config is the immutable configuration of one widget instance, supplied by
// the embedder and threaded explicitly into every component that needs it.
type Config struct {
	// AmountInUSD is the invoice amount, a positive decimal string.
	AmountInUSD string `validate:"required"`

	// RecipientWallet receives the settled payment.
	RecipientWallet string `validate:"required"`

	// Network is the logical payment network name (see types.ResolveNetwork).
	Network string `validate:"required"`

	// APIClientID identifies the embedder to the payout API.
	APIClientID string `validate:"required"`

	// APIBaseURL overrides the payout API endpoint. Defaults to
	// DefaultAPIBaseURL.
	APIBaseURL string

	// SupportedCurrencies is the allow-list of ticker symbols the widget
	// offers. Empty means every catalog entry is eligible.
	SupportedCurrencies []string

	// FeeInfo optionally routes a percentage of the payment to a fee
	// address.
	FeeInfo *types.FeeInfo

	// Reference is an opaque embedder correlation id forwarded to the
	// payout API.
	Reference string

	// BuyerPrefill seeds the profile form.
	BuyerPrefill *flow.BuyerInfo

	// WalletSession injects an already connected wallet. When set, the
	// widget never disconnects it.
	WalletSession signer.WalletSession

	// ManagedWalletKey is the hex private key of a widget-managed wallet,
	// used when no session is injected. The widget owns its full
	// connect, use, disconnect lifecycle.
	ManagedWalletKey string

	// RPCOverrides maps a network name to an RPC endpoint, replacing the
	// descriptor default.
	RPCOverrides map[string]string

	// OnPaymentSuccess fires once when the attempt resolves successfully.
	OnPaymentSuccess func(requestID string, receipts []*ethtypes.Receipt)

	// OnPaymentError receives every classified failure, cause included.
	OnPaymentError func(err *types.FlowError)

	// OnComplete fires when the widget is dismissed after success.
	OnComplete func()
}

// Widget is one embeddable payment flow instance.
type Widget struct {
	config  Config
	chain   types.ChainDescriptor
	log     logger.Logger
	metrics metrics.Recorder
	http    *http.Client
	timeout time.Duration

	flow    *flow.Flow
	signer  signer.Signer
	managed *signer.Managed
}

// New validates the configuration, resolves the network and wires the
// currency catalog, signer, orchestrator and flow.
func New(config Config, opts ...Option) (*Widget, error) {
	w := &Widget{
		config:  config,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid widget config: %w", err)
	}
	if _, err := utils.ValidateAmount(config.AmountInUSD); err != nil {
		return nil, fmt.Errorf("invalid widget config: %w", err)
	}
	if err := utils.ValidateAddress(config.RecipientWallet); err != nil {
		return nil, fmt.Errorf("invalid widget config: %w", err)
	}
	if config.FeeInfo != nil {
		if err := config.FeeInfo.Validate(); err != nil {
			return nil, fmt.Errorf("invalid widget config: %w", err)
		}
	}

	chain, err := types.ResolveNetwork(config.Network)
	if err != nil {
		return nil, err
	}
	if override, ok := w.config.RPCOverrides[chain.Network.String()]; ok {
		chain.RPCOverride = override
	}
	w.chain = chain

	if w.http == nil {
		w.http = &http.Client{Timeout: w.timeout}
	}

	if err := w.buildSigner(); err != nil {
		return nil, err
	}

	baseURL := config.APIBaseURL
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	catalogClient := catalog.NewClient(baseURL, config.APIClientID, w.http, w.log, w.metrics)
	payoutClient := payout.NewClient(baseURL, config.APIClientID, w.http, w.log, w.metrics)
	orchestrator := payout.NewOrchestrator(payoutClient, w.signer, chain, w.log, w.metrics)

	w.flow = flow.New(flow.Params{
		AmountInUSD:     config.AmountInUSD,
		RecipientWallet: config.RecipientWallet,
		Network:         chain.Network.String(),
		AllowedSymbols:  config.SupportedCurrencies,
		FeeInfo:         config.FeeInfo,
		Reference:       config.Reference,
		BuyerPrefill:    config.BuyerPrefill,
		Callbacks: flow.Callbacks{
			OnPaymentSuccess: config.OnPaymentSuccess,
			OnPaymentError:   config.OnPaymentError,
			OnComplete:       config.OnComplete,
		},
	}, catalogClient, orchestrator, w.log)

	return w, nil
}

// buildSigner picks the injected session when one was supplied, otherwise a
// managed wallet owned by the widget.
func (w *Widget) buildSigner() error {
	if w.config.WalletSession != nil {
		w.signer = signer.NewInjected(w.config.WalletSession, w.chain, w.log)
		return nil
	}
	if w.config.ManagedWalletKey == "" {
		return fmt.Errorf("either a wallet session or a managed wallet key is required")
	}

	manager, err := signer.NewConnectionManager(w.config.ManagedWalletKey, w.log)
	if err != nil {
		return err
	}
	w.managed = signer.NewManaged(manager)
	w.signer = w.managed
	return nil
}

// LoadCurrencies fetches the eligible settlement currencies for the flow's
// network.
func (w *Widget) LoadCurrencies(ctx context.Context) ([]types.ConversionCurrency, error) {
	return w.flow.LoadCurrencies(ctx)
}

// Currencies returns the eligible set from the last successful load.
func (w *Widget) Currencies() []types.ConversionCurrency {
	return w.flow.Currencies()
}

// SelectCurrency picks one eligible currency and advances the flow.
func (w *Widget) SelectCurrency(currencyID string) error {
	return w.flow.SelectCurrency(currencyID)
}

// SubmitBuyerInfo validates and stores the profile, advancing the flow.
func (w *Widget) SubmitBuyerInfo(info flow.BuyerInfo) error {
	return w.flow.SubmitBuyerInfo(info)
}

// ConfirmPayment executes the payment attempt.
func (w *Widget) ConfirmPayment(ctx context.Context) error {
	return w.flow.ConfirmPayment(ctx)
}

// Back returns the flow to its previous step.
func (w *Widget) Back() {
	w.flow.Back()
}

// Step returns the flow's current stage.
func (w *Widget) Step() flow.Step {
	return w.flow.Step()
}

// LastError returns the classified error shown in the current step, if any.
func (w *Widget) LastError() *types.FlowError {
	return w.flow.LastError()
}

// Receipt assembles the finalized payment record. Only available after the
// flow reached success.
func (w *Widget) Receipt() (*receipt.Record, error) {
	if w.flow.Step() != flow.StepSuccess {
		return nil, fmt.Errorf("no receipt before the payment succeeds")
	}

	requestID, receipts := w.flow.Result()
	currency := w.flow.SelectedCurrency()
	if currency == nil {
		return nil, fmt.Errorf("no settlement currency recorded")
	}

	payer := ""
	if addr, ok := w.signer.Address(); ok {
		payer = addr.Hex()
	}

	return receipt.Assemble(receipt.Input{
		RequestID:        requestID,
		PaymentReference: w.flow.PaymentReference(),
		AmountInUSD:      w.config.AmountInUSD,
		PayerWallet:      payer,
		RecipientWallet:  w.config.RecipientWallet,
		FeeInfo:          w.config.FeeInfo,
		Currency:         *currency,
		Buyer:            w.flow.Buyer(),
		Receipts:         receipts,
	}), nil
}

// Close dismisses the widget. Refused while a payment attempt is in
// flight. When the widget manages its own wallet, dismissal also releases
// the wallet connection; an injected session is never touched.
func (w *Widget) Close() error {
	if err := w.flow.Close(); err != nil {
		return err
	}
	if w.managed != nil {
		w.managed.Disconnect()
	}
	return nil
}
