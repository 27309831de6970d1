// Package signer unifies the two wallet sources of the widget behind one
// interface: an externally injected wallet session supplied by the embedder,
// and an internally managed connection owned by the widget. The orchestrator
// depends only on the Signer interface and never branches on the variant.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/requestnet/payflow/types"
)

// TxParams are the fields of one planned on-chain call.
type TxParams struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Signer is the capability set the payout orchestrator drives.
type Signer interface {
	// Connected reports whether a wallet session is active.
	Connected() bool

	// Address returns the active wallet address, if any.
	Address() (common.Address, bool)

	// SwitchChain makes the signer target the given chain before sending.
	// A refusal by the underlying signer is reported as
	// chain_switch_rejected.
	SwitchChain(ctx context.Context, chain types.ChainDescriptor) error

	// SendTransaction submits one transaction and returns its hash.
	SendTransaction(ctx context.Context, tx TxParams) (common.Hash, error)

	// WaitForConfirmation blocks until the chain reports the transaction
	// mined, returning its receipt. A reverted transaction is reported as
	// transaction_reverted, a context deadline as confirmation_timeout.
	WaitForConfirmation(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// WalletSession is the contract an embedder implements to inject an already
// connected wallet. The widget never disconnects an injected session.
type WalletSession interface {
	// Account returns the session's address, or false when no account is
	// attached.
	Account() (common.Address, bool)

	// ChainID returns the chain the session currently targets.
	ChainID(ctx context.Context) (*big.Int, error)

	// SwitchChain asks the session to target the given chain. Returning an
	// error means the signer refused or lacks the chain.
	SwitchChain(ctx context.Context, chainID *big.Int) error

	// SendTransaction signs and submits a transaction on the session's
	// current chain.
	SendTransaction(ctx context.Context, tx TxParams) (common.Hash, error)
}

// ReceiptReader is the read-only chain capability used to poll for
// confirmations. *ethclient.Client satisfies it.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}
