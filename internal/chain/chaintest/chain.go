// Package chaintest provides an in-memory chain.Provider that runs the
// FixedSupplyToken and Exchange contracts, records every RPC it serves and
// lets tests inject faults, latency and subscription drops.
package chaintest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
)

// RPC method names as recorded by Calls.
const (
	MethodAccounts    = "eth_accounts"
	MethodNetworkID   = "net_version"
	MethodBlockNumber = "eth_blockNumber"
	MethodGetBalance  = "eth_getBalance"
	MethodCall        = "eth_call"
	MethodSendTx      = "eth_sendTransaction"
	MethodReceipt     = "eth_getTransactionReceipt"
	MethodGetLogs     = "eth_getLogs"
	MethodSubscribe   = "eth_subscribe"
)

// ErrReverted is the send-time error returned in RevertOnSend mode.
var ErrReverted = errors.New("VM Exception while processing transaction: revert")

// Default accounts, funded with 100 ether each.
var (
	Alice = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	Bob   = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
	Carol = common.HexToAddress("0xC5fdf4076b8F3A5357c5E395ab970B5B54098Fef")
)

// NetworkID is the default network id (ganache).
const NetworkID = 5777

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Chain is a single-node in-memory chain. Every transaction is mined into
// its own block immediately.
type Chain struct {
	mu sync.Mutex

	networkID *big.Int
	accounts  []common.Address
	ether     map[common.Address]*big.Int
	tokens    map[common.Address]*token
	exchanges map[common.Address]*exchange
	nextAddr  uint64
	nonce     uint64

	head     uint64
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt
	pending  map[common.Hash]int

	calls        []string
	faults       map[string][]error
	latency      time.Duration
	pendingPolls int
	revertOnSend bool
	noSubscribe  bool
	rawCall      []byte
	subs         map[*subscription]struct{}
	closed       bool
}

// Option configures a Chain.
type Option func(*Chain)

// WithAccounts replaces the node-managed accounts.
func WithAccounts(accts ...common.Address) Option {
	return func(c *Chain) { c.accounts = accts }
}

// WithNetworkID sets the network id.
func WithNetworkID(id int64) Option {
	return func(c *Chain) { c.networkID = big.NewInt(id) }
}

// WithoutSubscriptions makes SubscribeFilterLogs fail like a plain HTTP node.
func WithoutSubscriptions() Option {
	return func(c *Chain) { c.noSubscribe = true }
}

// New creates a chain at block 0 with Alice, Bob and Carol as accounts.
func New(opts ...Option) *Chain {
	c := &Chain{
		networkID: big.NewInt(NetworkID),
		accounts:  []common.Address{Alice, Bob, Carol},
		ether:     make(map[common.Address]*big.Int),
		tokens:    make(map[common.Address]*token),
		exchanges: make(map[common.Address]*exchange),
		receipts:  make(map[common.Hash]*types.Receipt),
		pending:   make(map[common.Hash]int),
		faults:    make(map[string][]error),
		subs:      make(map[*subscription]struct{}),
		nextAddr:  0xc0de0000,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, a := range c.accounts {
		c.ether[a] = new(big.Int).Mul(big.NewInt(100), oneEther)
	}
	return c
}

var _ chain.Provider = (*Chain)(nil)

// ---------------------------------------------------------------------------
// test controls
// ---------------------------------------------------------------------------

// DeployToken deploys a FixedSupplyToken with supply credited to owner and
// returns its address. Deployment mines one block.
func (c *Chain) DeployToken(owner common.Address, supply *big.Int) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.newAddress()
	c.tokens[addr] = newToken(owner, supply)
	c.head++
	return addr
}

// DeployExchange deploys an Exchange and returns its address.
func (c *Chain) DeployExchange() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.newAddress()
	c.exchanges[addr] = newExchange()
	c.head++
	return addr
}

// TokenBalance reads a balance directly, without recording a call.
func (c *Chain) TokenBalance(tokenAddr, owner common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[tokenAddr]
	if !ok {
		return nil
	}
	return new(big.Int).Set(t.balanceOf(owner))
}

// ListedTokens returns the symbols listed on an exchange, in listing order.
func (c *Chain) ListedTokens(exchangeAddr common.Address) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ex, ok := c.exchanges[exchangeAddr]
	if !ok {
		return nil
	}
	return append([]string(nil), ex.symbols...)
}

// SetNetworkID switches the network id, as when the user points the node
// or wallet at another chain.
func (c *Chain) SetNetworkID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networkID = big.NewInt(id)
}

// Fail queues err as the result of the next call to method. Errors queue up
// and are consumed one per call.
func (c *Chain) Fail(method string, err error, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range times {
		c.faults[method] = append(c.faults[method], err)
	}
}

// SetLatency delays every call by d (honouring ctx cancellation).
func (c *Chain) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

// SetPendingPolls makes every new transaction report "not found" for n
// receipt polls before its receipt becomes visible.
func (c *Chain) SetPendingPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPolls = n
}

// SetRevertOnSend makes failing token transfers error at send time instead
// of being mined with status 0.
func (c *Chain) SetRevertOnSend(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertOnSend = v
}

// SetRawCallResult makes eth_call return out verbatim until reset with nil.
func (c *Chain) SetRawCallResult(out []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawCall = out
}

// DropSubscriptions terminates every live subscription with err, like a
// websocket disconnect.
func (c *Chain) DropSubscriptions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subs {
		delete(c.subs, s)
		s.stop(err)
	}
}

// Subscriptions returns the number of live subscriptions.
func (c *Chain) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Broadcast pushes l to live subscribers only; it is not stored in the
// chain. Tests use it for duplicates, removed logs and foreign topics.
func (c *Chain) Broadcast(l types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(l)
}

// Logs returns every log stored on the chain.
func (c *Chain) Logs() []types.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Log(nil), c.logs...)
}

// Head returns the latest block number without recording a call.
func (c *Chain) Head() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Calls returns the RPC methods served so far, in order.
func (c *Chain) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CallCount returns how often method was served.
func (c *Chain) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (c *Chain) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Closed reports whether Close was called.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ---------------------------------------------------------------------------
// chain.Provider
// ---------------------------------------------------------------------------

func (c *Chain) Accounts(ctx context.Context) ([]common.Address, error) {
	if err := c.enter(ctx, MethodAccounts); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.accounts...), nil
}

func (c *Chain) NetworkID(ctx context.Context) (*big.Int, error) {
	if err := c.enter(ctx, MethodNetworkID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.networkID), nil
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.enter(ctx, MethodBlockNumber); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *Chain) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := c.enter(ctx, MethodGetBalance); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.ether[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := c.enter(ctx, MethodCall); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rawCall != nil {
		return append([]byte(nil), c.rawCall...), nil
	}
	if msg.To == nil {
		return nil, errors.New("eth_call without target")
	}
	if t, ok := c.tokens[*msg.To]; ok {
		return t.call(msg.Data)
	}
	if ex, ok := c.exchanges[*msg.To]; ok {
		return ex.call(msg.Data)
	}
	// no code at address
	return nil, nil
}

func (c *Chain) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	if err := c.enter(ctx, MethodSendTx); err != nil {
		return common.Hash{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isAccount(msg.From) {
		return common.Hash{}, fmt.Errorf("unknown account %s", msg.From.Hex())
	}
	if msg.To == nil {
		return common.Hash{}, errors.New("contract creation not supported")
	}

	var logs []types.Log
	err := c.transferEther(msg.From, *msg.To, msg.Value)
	if err == nil {
		switch {
		case c.tokens[*msg.To] != nil:
			logs, err = c.tokens[*msg.To].transact(msg.From, msg.Data)
		case c.exchanges[*msg.To] != nil:
			logs, err = c.exchanges[*msg.To].transact(msg.From, msg.Data)
		}
		if err != nil {
			c.transferEther(*msg.To, msg.From, msg.Value) //nolint:errcheck
		}
	}

	if err != nil && c.revertOnSend {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrReverted, err)
	}
	return c.mine(msg.From, *msg.To, logs, err == nil), nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.enter(ctx, MethodReceipt); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if c.pending[hash] > 0 {
		c.pending[hash]--
		return nil, ethereum.NotFound
	}
	cp := *r
	return &cp, nil
}

func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.enter(ctx, MethodGetLogs); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	from := uint64(0)
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	to := c.head
	if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && q.ToBlock.Uint64() < to {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if matches(q, l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *Chain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if err := c.enter(ctx, MethodSubscribe); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noSubscribe {
		return nil, chain.ErrNotificationsUnsupported
	}

	s := &subscription{
		chain: c,
		query: q,
		out:   ch,
		buf:   make(chan types.Log, 1024),
		errc:  make(chan error, 1),
		quit:  make(chan struct{}),
	}
	c.subs[s] = struct{}{}
	go s.loop()
	return s, nil
}

// Close marks the provider closed; later calls fail with chain.ErrRPC.
func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for s := range c.subs {
		delete(c.subs, s)
		s.stop(nil)
	}
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

// enter records the call, applies latency and returns any queued fault.
func (c *Chain) enter(ctx context.Context, method string) error {
	c.mu.Lock()
	c.calls = append(c.calls, method)
	latency := c.latency
	closed := c.closed
	var fault error
	if q := c.faults[method]; len(q) > 0 {
		fault = q[0]
		c.faults[method] = q[1:]
	}
	c.mu.Unlock()

	if closed {
		return chain.WrapRPC(method, errors.New("provider closed"))
	}
	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return chain.WrapRPC(method, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return chain.WrapRPC(method, err)
	}
	return fault
}

func (c *Chain) isAccount(a common.Address) bool {
	for _, acct := range c.accounts {
		if acct == a {
			return true
		}
	}
	return false
}

func (c *Chain) newAddress() common.Address {
	c.nextAddr++
	var b [20]byte
	binary.BigEndian.PutUint64(b[12:], c.nextAddr)
	return common.BytesToAddress(b[:])
}

func (c *Chain) transferEther(from, to common.Address, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	bal := c.ether[from]
	if bal == nil || bal.Cmp(value) < 0 {
		return errors.New("insufficient funds")
	}
	c.ether[from] = new(big.Int).Sub(bal, value)
	if c.ether[to] == nil {
		c.ether[to] = new(big.Int)
	}
	c.ether[to] = new(big.Int).Add(c.ether[to], value)
	return nil
}

// mine seals one block holding a single transaction and publishes its logs.
func (c *Chain) mine(from, to common.Address, logs []types.Log, ok bool) common.Hash {
	c.nonce++
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], c.nonce)
	hash := crypto.Keccak256Hash(from.Bytes(), nb[:])

	c.head++
	binary.BigEndian.PutUint64(nb[:], c.head)
	blockHash := crypto.Keccak256Hash([]byte("block"), nb[:])

	r := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockHash:   blockHash,
		BlockNumber: new(big.Int).SetUint64(c.head),
		GasUsed:     21000,
	}
	if !ok {
		r.Status = types.ReceiptStatusFailed
		logs = nil
	}

	for i := range logs {
		l := logs[i]
		l.Address = to
		l.BlockNumber = c.head
		l.BlockHash = blockHash
		l.TxHash = hash
		l.Index = uint(i)
		c.logs = append(c.logs, l)
		r.Logs = append(r.Logs, &l)
		c.publish(l)
	}

	c.receipts[hash] = r
	if c.pendingPolls > 0 {
		c.pending[hash] = c.pendingPolls
	}
	return hash
}

func (c *Chain) publish(l types.Log) {
	for s := range c.subs {
		if !matches(s.query, l) {
			continue
		}
		select {
		case s.buf <- l:
		default:
			// subscriber far behind; a real node would drop the connection
			delete(c.subs, s)
			s.stop(errors.New("subscription buffer overflow"))
		}
	}
}

func matches(q ethereum.FilterQuery, l types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alts := range q.Topics {
		if len(alts) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range alts {
			if t == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func mustArtifactABI(name string) abi.ABI {
	b, ok := contract.GetBuiltin(name)
	if !ok {
		panic("chaintest: missing builtin " + name)
	}
	a, err := b.Artifact()
	if err != nil {
		panic(err)
	}
	return a.ABI
}
