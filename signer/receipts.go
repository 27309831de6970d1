package signer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/requestnet/payflow/types"
)

// defaultPollInterval is how often the chain is asked for a receipt while
// waiting for a confirmation.
const defaultPollInterval = 2 * time.Second

// waitMined polls reader until the transaction is mined and classifies the
// outcome. A receipt with a failed status becomes transaction_reverted; a
// context that ends while waiting becomes confirmation_timeout. Receipt
// lookups that error (including not-found on nodes that have not seen the
// transaction yet) keep polling.
func waitMined(ctx context.Context, reader ReceiptReader, hash common.Hash, interval time.Duration) (*ethtypes.Receipt, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return nil, types.NewFlowError(types.ErrTransactionReverted,
					"transaction reverted on chain: "+hash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, types.WrapError(types.ErrConfirmationTimeout,
				"gave up waiting for confirmation of "+hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
