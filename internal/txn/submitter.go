// Package txn drives state-changing contract calls through
// Created → Submitted → Pending → Confirmed | Failed | Rejected.
package txn

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/wallet"
)

// Errors.
var (
	ErrValidation     = errors.New("invalid transaction input")
	ErrReceiptTimeout = fmt.Errorf("%w: receipt wait expired", chain.ErrRPC)
	ErrClosed         = errors.New("submitter closed")
)

// Status lines shown to the user.
const (
	StatusInitiating = "Initiating transaction... (please wait)"
	StatusComplete   = "Transaction complete!"
	StatusError      = "Error sending coin; see log."
)

const (
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 8 * time.Second
)

// ActiveAccount yields the sender for new transactions.
type ActiveAccount interface {
	RequireActive() (wallet.Account, error)
}

// Submitter sends write calls and follows each one to a terminal state.
// Every attempt is kept in History; nothing is retried automatically.
type Submitter struct {
	provider chain.Provider
	accounts ActiveAccount
	reporter *status.Reporter
	log      *zap.Logger

	submitTimeout time.Duration
	receiptWait   time.Duration
	backoff       time.Duration
	maxBackoff    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	history []*Transaction
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithReporter sets the status surface for transitions.
func WithReporter(r *status.Reporter) Option {
	return func(s *Submitter) { s.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) { s.log = logging.OrNop(l) }
}

// WithSubmitTimeout bounds eth_sendTransaction.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Submitter) { s.submitTimeout = d }
}

// WithReceiptWait bounds the time from Pending to a receipt.
func WithReceiptWait(d time.Duration) Option {
	return func(s *Submitter) { s.receiptWait = d }
}

// WithBackoff sets the initial and maximum receipt poll interval.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(s *Submitter) {
		if initial > 0 {
			s.backoff = initial
		}
		s.maxBackoff = maxDelay
	}
}

// NewSubmitter creates a Submitter sending from accounts' active account.
func NewSubmitter(provider chain.Provider, accounts ActiveAccount, opts ...Option) *Submitter {
	s := &Submitter{
		provider:   provider,
		accounts:   accounts,
		log:        zap.NewNop(),
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Transfer sends amount tokens to recipient from the active account.
func (s *Submitter) Transfer(ctx context.Context, token *contract.Binding, recipient, amount string) (*Transaction, error) {
	to, v, err := parseTarget(recipient, amount)
	if err != nil {
		s.invalid(token, "transfer", err)
		return nil, err
	}
	return s.Submit(ctx, token, "transfer", to, v)
}

// Approve lets spender move amount tokens on behalf of the active account.
func (s *Submitter) Approve(ctx context.Context, token *contract.Binding, spender, amount string) (*Transaction, error) {
	to, v, err := parseTarget(spender, amount)
	if err != nil {
		s.invalid(token, "approve", err)
		return nil, err
	}
	return s.Submit(ctx, token, "approve", to, v)
}

// Submit validates and sends a write call with no ether attached.
func (s *Submitter) Submit(ctx context.Context, b *contract.Binding, method string, args ...interface{}) (*Transaction, error) {
	return s.SubmitValue(ctx, b, nil, method, args...)
}

// SubmitValue validates and sends a write call. Validation failures return
// ErrValidation without touching the provider. Otherwise the returned
// transaction is Pending, or already terminal when the provider refused it;
// a refused send is a state, not an error.
func (s *Submitter) SubmitValue(ctx context.Context, b *contract.Binding, value *big.Int, method string, args ...interface{}) (*Transaction, error) {
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}

	acct, err := s.accounts.RequireActive()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrValidation, err)
		s.invalid(b, method, err)
		return nil, err
	}
	msg, err := b.WriteCall(acct.Address, value, method, args...)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrValidation, err)
		s.invalid(b, method, err)
		return nil, err
	}

	tx := newTransaction(acct.Address, b.Name(), b.Address(), method, args, value)
	s.mu.Lock()
	s.history = append(s.history, tx)
	s.mu.Unlock()

	s.move(tx, Submitted, "", nil)

	sendCtx, cancel := chain.WithTimeout(ctx, s.submitTimeout)
	hash, err := s.provider.SendTransaction(sendCtx, msg)
	cancel()
	if err != nil {
		s.move(tx, sendOutcome(err), err.Error(), func() { tx.err = err })
		return tx, nil
	}

	s.move(tx, Pending, hash.Hex(), func() { tx.hash = hash })

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		s.move(tx, Failed, ErrClosed.Error(), func() { tx.err = ErrClosed })
		return tx, nil
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.follow(tx)
	return tx, nil
}

// History returns every attempt in submission order.
func (s *Submitter) History() []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Transaction(nil), s.history...)
}

// Close stops following pending transactions; they end Failed with
// ErrClosed. Close waits for the followers to exit.
func (s *Submitter) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// follow polls for the receipt with exponential backoff until it is mined,
// the receipt wait expires or the submitter closes.
func (s *Submitter) follow(tx *Transaction) {
	defer s.wg.Done()

	ctx, cancel := chain.WithTimeout(s.ctx, s.receiptWait)
	defer cancel()

	r, err := s.waitReceipt(ctx, tx.Hash())
	switch {
	case err != nil:
		s.move(tx, Failed, err.Error(), func() { tx.err = err })
	case r.Status == types.ReceiptStatusFailed:
		err := fmt.Errorf("transaction %s reverted in block %s", r.TxHash.Hex(), r.BlockNumber)
		s.move(tx, Failed, err.Error(), func() {
			tx.receipt = r
			tx.err = err
		})
	default:
		s.move(tx, Confirmed, fmt.Sprintf("block %s", r.BlockNumber), func() { tx.receipt = r })
	}
}

func (s *Submitter) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backoff := s.backoff
	var last error
	for {
		r, err := s.provider.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return r, nil
		case errors.Is(err, ethereum.NotFound):
		case errors.Is(err, chain.ErrRPC):
			// transient; keep polling until the wait expires
			last = err
			s.log.Debug("receipt poll failed", zap.Stringer("tx", hash), zap.Error(err))
		default:
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				return nil, ErrClosed
			}
			if last != nil {
				return nil, fmt.Errorf("%w: %s: last error: %v", ErrReceiptTimeout, hash.Hex(), last)
			}
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		}
		if s.maxBackoff == 0 || backoff < s.maxBackoff {
			backoff *= 2
			if s.maxBackoff > 0 && backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
		}
	}
}

// sendOutcome classifies a failed send. Only the wallet or the node saying
// no is a rejection; transport trouble and execution errors are failures.
func sendOutcome(err error) State {
	switch {
	case chain.IsUserRejection(err):
		return Rejected
	case errors.Is(err, chain.ErrRPC), errors.Is(err, context.DeadlineExceeded):
		return Failed
	case chain.IsExecutionError(err):
		return Failed
	default:
		return Rejected
	}
}

// move applies a transition and reports it.
func (s *Submitter) move(tx *Transaction, to State, detail string, apply func()) {
	tr, ok := tx.advance(to, detail, apply)
	if !ok {
		s.log.Warn("illegal transaction transition ignored",
			zap.String("tx", tx.ID()),
			zap.String("from", string(tx.State())),
			zap.String("to", string(to)))
		return
	}
	defer tx.finish()

	fields := []zap.Field{
		zap.String("tx", tx.ID()),
		zap.String("contract", tx.Contract()),
		zap.String("method", tx.Method()),
		zap.String("state", string(to)),
	}
	switch to {
	case Failed, Rejected:
		s.log.Error("transaction "+string(to), append(fields, zap.Error(tx.Err()))...)
	default:
		s.log.Info("transaction "+string(to), fields...)
	}

	if s.reporter == nil {
		return
	}
	switch to {
	case Submitted:
		s.reporter.SetStatus(StatusInitiating)
	case Confirmed:
		s.reporter.SetStatus(StatusComplete)
	case Failed, Rejected:
		s.reporter.SetStatus(StatusError)
	}
	text := fmt.Sprintf("%s.%s %s -> %s", tx.Contract(), tx.Method(), tr.From, tr.To)
	if tr.Detail != "" {
		text += ": " + tr.Detail
	}
	s.reporter.Event(status.Notice{
		Kind:     status.KindTransaction,
		Contract: tx.Contract(),
		Name:     string(to),
		TxHash:   tx.Hash(),
		Text:     text,
		Time:     tr.At,
	})
}

func (s *Submitter) invalid(b *contract.Binding, method string, err error) {
	s.log.Warn("transaction rejected locally", zap.String("contract", b.Name()), zap.String("method", method), zap.Error(err))
	if s.reporter == nil {
		return
	}
	s.reporter.SetStatus(StatusError)
	s.reporter.Event(status.Notice{
		Kind:     status.KindError,
		Contract: b.Name(),
		Name:     method,
		Text:     err.Error(),
	})
}

func parseTarget(addr, amount string) (common.Address, *big.Int, error) {
	to, err := ParseAddress(addr)
	if err != nil {
		return common.Address{}, nil, err
	}
	v, err := ParseAmount(amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return to, v, nil
}
