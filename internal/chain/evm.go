package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ErrNotificationsUnsupported is returned by SubscribeFilterLogs when the
// endpoint cannot push notifications (plain HTTP).
var ErrNotificationsUnsupported = gethrpc.ErrNotificationsUnsupported

// EVMClient is a Provider backed by a go-ethereum RPC connection.
type EVMClient struct {
	url string
	rc  *gethrpc.Client
	ec  *ethclient.Client
}

// Dial connects to url (http, https, ws, wss or an IPC path).
func Dial(ctx context.Context, url string) (*EVMClient, error) {
	rc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, WrapRPC("dial "+url, err)
	}
	return NewEVMClient(url, rc), nil
}

// NewEVMClient wraps an already connected RPC client.
func NewEVMClient(url string, rc *gethrpc.Client) *EVMClient {
	return &EVMClient{
		url: url,
		rc:  rc,
		ec:  ethclient.NewClient(rc),
	}
}

// URL returns the endpoint this client was dialed with.
func (c *EVMClient) URL() string { return c.url }

// Accounts returns the node-managed accounts (eth_accounts).
func (c *EVMClient) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, WrapRPC("eth_accounts", err)
	}
	return accounts, nil
}

// NetworkID returns the net_version of the connected network.
func (c *EVMClient) NetworkID(ctx context.Context) (*big.Int, error) {
	id, err := c.ec.NetworkID(ctx)
	if err != nil {
		return nil, WrapRPC("net_version", err)
	}
	return id, nil
}

// BlockNumber returns the latest block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, WrapRPC("eth_blockNumber", err)
	}
	return n, nil
}

// BalanceAt returns the native balance in wei at the latest block.
func (c *EVMClient) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, WrapRPC("eth_getBalance", err)
	}
	return bal, nil
}

// CallContract executes a read-only call at the latest block.
func (c *EVMClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	out, err := c.ec.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, WrapRPC("eth_call", err)
	}
	return out, nil
}

// SendTransaction asks the node to sign and broadcast msg on behalf of
// msg.From (eth_sendTransaction). Node-side rejections are returned as-is so
// the caller can tell them apart from transport failures.
func (c *EVMClient) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	var hash common.Hash
	err := c.rc.CallContext(ctx, &hash, "eth_sendTransaction", toSendArg(msg))
	if err != nil {
		var rpcErr gethrpc.Error
		if errors.As(err, &rpcErr) {
			return common.Hash{}, err
		}
		return common.Hash{}, WrapRPC("eth_sendTransaction", err)
	}
	return hash, nil
}

// TransactionReceipt returns the receipt for hash, or ethereum.NotFound
// while it is still pending.
func (c *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.ec.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		return nil, WrapRPC("eth_getTransactionReceipt", err)
	}
	return r, nil
}

// FilterLogs queries historical logs (eth_getLogs).
func (c *EVMClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.ec.FilterLogs(ctx, q)
	if err != nil {
		return nil, WrapRPC("eth_getLogs", err)
	}
	return logs, nil
}

// SubscribeFilterLogs opens an eth_subscribe("logs") feed. Over HTTP this
// fails with ErrNotificationsUnsupported.
func (c *EVMClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := c.ec.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		if errors.Is(err, ErrNotificationsUnsupported) {
			return nil, err
		}
		return nil, WrapRPC("eth_subscribe", err)
	}
	return sub, nil
}

// Ping measures the round trip of eth_blockNumber.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// Close tears down the underlying connection.
func (c *EVMClient) Close() {
	c.rc.Close()
}

func toSendArg(msg ethereum.CallMsg) map[string]interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
	}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	return arg
}

// IsUserRejection reports whether err is a wallet-side refusal to sign
// (EIP-1193 code 4001 or the usual "denied"/"rejected" wording).
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 4001 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user denied") || strings.Contains(msg, "user rejected")
}

// IsExecutionError reports whether err carries an EVM execution failure
// (revert, out of gas, invalid opcode) rather than a refusal or transport
// problem.
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"execution reverted", "revert", "out of gas", "invalid opcode", "vm exception"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RevertReason extracts the "execution reverted: <reason>" part of msg.
func RevertReason(msg string) string {
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx:])
	}
	if idx := strings.Index(msg, "revert"); idx >= 0 {
		return strings.TrimSpace(msg[idx:])
	}
	return msg
}

// String implements fmt.Stringer for logging.
func (c *EVMClient) String() string {
	return fmt.Sprintf("EVMClient(%s)", c.url)
}
