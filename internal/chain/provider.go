package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrRPC marks a transport failure or timeout talking to the node.
// Callers may retry; the event manager retries on its own.
var ErrRPC = errors.New("rpc error")

// Provider is the set of JSON-RPC operations the session needs from a node.
// Writes go through eth_sendTransaction, so the node (or an injected wallet)
// holds the keys for the accounts it reports.
type Provider interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)

	// TransactionReceipt returns ethereum.NotFound while the tx is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// SubscribeFilterLogs opens a live log feed. Providers without push
	// support return ErrNotificationsUnsupported.
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

	Close()
}

// WrapRPC tags err as an ErrRPC failure of op. Already tagged errors and
// nil pass through unchanged.
func WrapRPC(op string, err error) error {
	if err == nil || errors.Is(err, ErrRPC) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrRPC, op, err)
}

// WithTimeout returns ctx unchanged if d <= 0, otherwise a child context
// with timeout d. The cancel func is never nil.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
