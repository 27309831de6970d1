package signer

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/types"
)

var _ Signer = (*Injected)(nil)

// Injected adapts an embedder-supplied wallet session. Confirmations are
// watched through a dedicated read-only chain client dialed for the resolved
// chain descriptor, because the session itself only exposes signing.
type Injected struct {
	session      WalletSession
	chain        types.ChainDescriptor
	log          logger.Logger
	pollInterval time.Duration

	dial func(ctx context.Context, rawurl string) (ReceiptReader, error)

	mu     sync.Mutex
	reader ReceiptReader
}

func NewInjected(session WalletSession, chain types.ChainDescriptor, log logger.Logger) *Injected {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Injected{
		session:      session,
		chain:        chain,
		log:          log,
		pollInterval: defaultPollInterval,
		dial: func(ctx context.Context, rawurl string) (ReceiptReader, error) {
			return ethclient.DialContext(ctx, rawurl)
		},
	}
}

func (s *Injected) Connected() bool {
	_, ok := s.session.Account()
	return ok
}

func (s *Injected) Address() (common.Address, bool) {
	return s.session.Account()
}

// SwitchChain asks the session to retarget only when its current chain
// differs from the required one.
func (s *Injected) SwitchChain(ctx context.Context, chain types.ChainDescriptor) error {
	current, err := s.session.ChainID(ctx)
	if err == nil && current != nil && current.Cmp(chain.ChainID) == 0 {
		return nil
	}

	if err := s.session.SwitchChain(ctx, chain.ChainID); err != nil {
		return types.WrapError(types.ErrChainSwitchRejected,
			"wallet refused to switch to "+chain.Name, err)
	}

	s.log.Debug("switched wallet chain", map[string]any{
		"chain":   chain.Name,
		"chainId": chain.ChainID.String(),
	})
	return nil
}

func (s *Injected) SendTransaction(ctx context.Context, tx TxParams) (common.Hash, error) {
	return s.session.SendTransaction(ctx, tx)
}

func (s *Injected) WaitForConfirmation(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	reader, err := s.chainReader(ctx)
	if err != nil {
		return nil, types.WrapError(types.ErrConfirmationTimeout,
			"failed to reach chain RPC for confirmation", err)
	}
	return waitMined(ctx, reader, hash, s.pollInterval)
}

func (s *Injected) chainReader(ctx context.Context) (ReceiptReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		return s.reader, nil
	}

	reader, err := s.dial(ctx, s.chain.RPC())
	if err != nil {
		return nil, err
	}
	s.reader = reader
	return reader, nil
}
