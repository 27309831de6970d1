package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/types"
)

// chainBackend is the slice of the RPC client the connection manager uses.
// *ethclient.Client satisfies it.
type chainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// ConnectionManager owns the connect → use → disconnect lifecycle of a
// widget-managed wallet: it dials the chain RPC, signs with a locally held
// key and watches confirmations through the same connection.
type ConnectionManager struct {
	key     *ecdsa.PrivateKey
	address common.Address
	log     logger.Logger

	dial func(ctx context.Context, rawurl string) (chainBackend, error)

	mu      sync.Mutex
	backend chainBackend
	chain   types.ChainDescriptor
}

// NewConnectionManager derives the wallet address from a hex-encoded
// secp256k1 private key. No connection is made until Connect.
func NewConnectionManager(hexKey string, log logger.Logger) (*ConnectionManager, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid managed wallet key: %w", err)
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &ConnectionManager{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		log:     log,
		dial: func(ctx context.Context, rawurl string) (chainBackend, error) {
			return ethclient.DialContext(ctx, rawurl)
		},
	}, nil
}

func (m *ConnectionManager) Address() common.Address {
	return m.address
}

func (m *ConnectionManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend != nil
}

// Connect dials the chain RPC and verifies the endpoint serves the expected
// chain. A mismatch is a refused switch, not a transport error: the managed
// wallet cannot reach the required chain.
func (m *ConnectionManager) Connect(ctx context.Context, chain types.ChainDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil && m.chain.ChainID != nil && m.chain.ChainID.Cmp(chain.ChainID) == 0 {
		return nil
	}
	if m.backend != nil {
		m.backend.Close()
		m.backend = nil
	}

	backend, err := m.dial(ctx, chain.RPC())
	if err != nil {
		return types.WrapError(types.ErrChainSwitchRejected,
			"failed to connect managed wallet to "+chain.Name, err)
	}

	remote, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return types.WrapError(types.ErrChainSwitchRejected,
			"failed to identify chain at "+chain.RPC(), err)
	}
	if remote.Cmp(chain.ChainID) != 0 {
		backend.Close()
		return types.NewFlowError(types.ErrChainSwitchRejected,
			fmt.Sprintf("endpoint serves chain %s, expected %s (%s)", remote, chain.ChainID, chain.Name))
	}

	m.backend = backend
	m.chain = chain
	m.log.Info("managed wallet connected", map[string]any{
		"chain":   chain.Name,
		"address": m.address.Hex(),
	})
	return nil
}

// Disconnect closes the RPC connection. Safe to call when not connected.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		m.backend.Close()
		m.backend = nil
		m.log.Info("managed wallet disconnected", map[string]any{"address": m.address.Hex()})
	}
}

// Send signs and submits one transaction on the connected chain.
func (m *ConnectionManager) Send(ctx context.Context, tx TxParams) (common.Hash, error) {
	m.mu.Lock()
	backend := m.backend
	chain := m.chain
	m.mu.Unlock()

	if backend == nil {
		return common.Hash{}, types.NewFlowError(types.ErrWalletNotConnected, "managed wallet is not connected")
	}

	nonce, err := backend.PendingNonceAt(ctx, m.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  m.address,
		To:    &tx.To,
		Value: value,
		Data:  tx.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	unsigned := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &tx.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     tx.Data,
	})

	signed, err := ethtypes.SignTx(unsigned, ethtypes.LatestSignerForChainID(chain.ChainID), m.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit transaction: %w", err)
	}
	return signed.Hash(), nil
}

// WaitMined is the built-in confirmation watcher of the managed connection.
func (m *ConnectionManager) WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()

	if backend == nil {
		return nil, types.NewFlowError(types.ErrWalletNotConnected, "managed wallet is not connected")
	}
	return waitMined(ctx, backend, hash, defaultPollInterval)
}

var _ Signer = (*Managed)(nil)

// Managed exposes a ConnectionManager through the Signer interface. Unlike
// an injected session, the widget owns the full lifecycle and disconnects
// the manager when dismissed.
type Managed struct {
	manager *ConnectionManager
}

func NewManaged(manager *ConnectionManager) *Managed {
	return &Managed{manager: manager}
}

// Connected is true as soon as the manager holds a key: the connection
// itself is established lazily by SwitchChain.
func (s *Managed) Connected() bool {
	return true
}

func (s *Managed) Address() (common.Address, bool) {
	return s.manager.Address(), true
}

// connectTimeout bounds the dial so a dead RPC endpoint does not stall the
// flow indefinitely.
const connectTimeout = 15 * time.Second

// SwitchChain connects (or reconnects) the managed wallet to the required
// chain through the connection manager.
func (s *Managed) SwitchChain(ctx context.Context, chain types.ChainDescriptor) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return s.manager.Connect(dialCtx, chain)
}

func (s *Managed) SendTransaction(ctx context.Context, tx TxParams) (common.Hash, error) {
	return s.manager.Send(ctx, tx)
}

func (s *Managed) WaitForConfirmation(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return s.manager.WaitMined(ctx, hash)
}

// Disconnect releases the underlying connection.
func (s *Managed) Disconnect() {
	s.manager.Disconnect()
}
