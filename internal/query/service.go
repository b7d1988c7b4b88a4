// Package query runs read-only contract calls. Nothing is cached: every
// call reaches the provider.
package query

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
)

// StatusBalanceError is shown when a balance read fails.
const StatusBalanceError = "Error getting balance; see log."

// BalanceSnapshot is one observed token balance.
type BalanceSnapshot struct {
	Owner        common.Address
	Token        string
	TokenAddress common.Address
	Value        *big.Int
	Block        uint64
	ObservedAt   time.Time
}

// Service executes view calls against bound contracts.
type Service struct {
	provider chain.Provider
	reporter *status.Reporter
	timeout  time.Duration
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithReporter sends failures to the status surface.
func WithReporter(r *status.Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = logging.OrNop(l) }
}

// NewService creates a query service.
func NewService(provider chain.Provider, opts ...Option) *Service {
	s := &Service{provider: provider, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query performs a read call and returns the decoded outputs. Transport
// failures and timeouts match chain.ErrRPC; an undecodable result matches
// contract.ErrDecode. Failures are reported like every other read.
func (s *Service) Query(ctx context.Context, b *contract.Binding, method string, args ...interface{}) ([]interface{}, error) {
	out, err := s.read(ctx, b, method, args...)
	if err != nil {
		s.fail("read failed", err, zap.String("contract", b.Name()), zap.String("method", method))
		return nil, err
	}
	return out, nil
}

func (s *Service) read(ctx context.Context, b *contract.Binding, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := chain.WithTimeout(ctx, s.timeout)
	defer cancel()
	return b.Read(ctx, common.Address{}, method, args...)
}

// BalanceOf reads owner's balance on token together with the block it was
// observed at.
func (s *Service) BalanceOf(ctx context.Context, token *contract.Binding, owner common.Address) (BalanceSnapshot, error) {
	snap, err := s.balanceOf(ctx, token, owner)
	if err != nil {
		s.fail("balance read failed", err, zap.String("token", token.Name()), zap.Stringer("owner", owner))
		return BalanceSnapshot{}, err
	}
	return snap, nil
}

func (s *Service) balanceOf(ctx context.Context, token *contract.Binding, owner common.Address) (BalanceSnapshot, error) {
	ctx, cancel := chain.WithTimeout(ctx, s.timeout)
	defer cancel()

	block, err := s.provider.BlockNumber(ctx)
	if err != nil {
		return BalanceSnapshot{}, chain.WrapRPC("eth_blockNumber", err)
	}
	out, err := token.Read(ctx, common.Address{}, "balanceOf", owner)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	v, err := bigOut(token, "balanceOf", out)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	return BalanceSnapshot{
		Owner:        owner,
		Token:        token.Name(),
		TokenAddress: token.Address(),
		Value:        v,
		Block:        block,
		ObservedAt:   time.Now(),
	}, nil
}

// Allowance reads how much spender may move on behalf of owner.
func (s *Service) Allowance(ctx context.Context, token *contract.Binding, owner, spender common.Address) (*big.Int, error) {
	out, err := s.read(ctx, token, "allowance", owner, spender)
	if err == nil {
		var v *big.Int
		if v, err = bigOut(token, "allowance", out); err == nil {
			return v, nil
		}
	}
	s.fail("allowance read failed", err, zap.Stringer("owner", owner), zap.Stringer("spender", spender))
	return nil, err
}

// EtherBalance reads owner's ether balance in wei.
func (s *Service) EtherBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ctx, cancel := chain.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.provider.BalanceAt(ctx, owner)
	if err != nil {
		err = chain.WrapRPC("eth_getBalance", err)
		s.fail("ether balance read failed", err, zap.Stringer("owner", owner))
		return nil, err
	}
	return v, nil
}

func (s *Service) fail(msg string, err error, fields ...zap.Field) {
	s.log.Error(msg, append(fields, zap.Error(err))...)
	if s.reporter != nil {
		s.reporter.SetStatus(StatusBalanceError)
	}
}

func bigOut(b *contract.Binding, method string, out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s.%s: %d outputs", contract.ErrDecode, b.Name(), method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s: unexpected %T", contract.ErrDecode, b.Name(), method, out[0])
	}
	return v, nil
}

// FormatUnits renders v scaled down by decimals, e.g. wei to ether with 18.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatEther renders a wei amount in ether, rounded to places.
func FormatEther(wei *big.Int, places int32) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).StringFixed(places)
}
