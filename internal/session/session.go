// Package session owns every component a front-end talks to: the resolved
// provider, the account registry, contract bindings, queries, transactions,
// event feeds and the status surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/config"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/events"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
	"github.com/Mohsinsiddi/w3dapp/internal/query"
	"github.com/Mohsinsiddi/w3dapp/internal/rpc"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/wallet"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session closed")

// Status lines shown to the user.
const (
	StatusAccountsError = "There was an error fetching your accounts."
	StatusNoAccounts    = "Couldn't get any accounts! Make sure your Ethereum client is configured correctly."
	StatusTokenAdded    = "Token added"
)

// Session is the context object handed to a front-end. It is safe for
// concurrent use.
type Session struct {
	cfg      *config.Config
	timeouts config.Timeouts
	log      *zap.Logger

	resolver  *rpc.Resolver
	provider  chain.Provider
	artifacts *contract.Registry
	cache     *contract.Cache
	accounts  *wallet.Registry
	reporter  *status.Reporter
	ownsRep   bool
	queries   *query.Service
	submitter *txn.Submitter
	events    *events.Manager

	mu      sync.Mutex
	network string
	watches []*events.Subscription
	closed  bool
}

type options struct {
	provider chain.Provider
	log      *zap.Logger
	reporter *status.Reporter
	sinks    []status.Sink
	store    wallet.Store
}

// Option configures Open.
type Option func(*options)

// WithProvider uses p as the injected provider; no endpoint is probed.
func WithProvider(p chain.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithReporter reports through r. The caller keeps ownership of r.
func WithReporter(r *status.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithSink attaches s to the session's status surface.
func WithSink(s status.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithAccountStore persists externally supplied accounts in s instead of
// the config directory.
func WithAccountStore(s wallet.Store) Option {
	return func(o *options) { o.store = s }
}

// Open resolves the provider, reads the network id, loads contract
// artifacts and discovers accounts. An empty account list is reported as a
// status line, not returned as an error.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.OrNop(o.log)
	timeouts := cfg.Timeouts.WithDefaults()

	s := &Session{cfg: cfg, timeouts: timeouts, log: log, reporter: o.reporter}
	if s.reporter == nil {
		s.reporter = status.New(status.WithLogger(log.Named("status")))
		s.ownsRep = true
	}
	for _, sink := range o.sinks {
		s.reporter.AddSink(sink)
	}

	algo, err := rpc.ParseAlgorithm(cfg.RPCAlgorithm)
	if err != nil {
		s.shutdown()
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	ropts := []rpc.ResolverOption{
		rpc.WithPicker(rpc.NewPicker(algo)),
		rpc.WithHealthTimeout(timeouts.Dial.Duration),
		rpc.WithResolverLogger(log.Named("rpc")),
	}
	if o.provider != nil {
		ropts = append(ropts, rpc.WithInjected(o.provider))
	}
	if cfg.InjectedRPC != "" {
		ropts = append(ropts, rpc.WithInjectedURL(cfg.InjectedRPC))
	}
	s.resolver = rpc.NewResolver(cfg.FallbackRPCs, ropts...)

	s.provider, err = s.resolver.Resolve(ctx)
	if err != nil {
		s.reporter.SetStatus("No Ethereum provider available; see log.")
		s.shutdown()
		return nil, err
	}

	network, err := s.readNetwork(ctx)
	if err != nil {
		s.shutdown()
		return nil, err
	}
	s.network = network

	s.artifacts, err = loadArtifacts(cfg)
	if err != nil {
		s.shutdown()
		return nil, err
	}
	s.cache = contract.NewCache(s.provider, network, contract.WithCacheLogger(log.Named("contract")))

	store := o.store
	if store == nil {
		store = wallet.NewJSONStore(cfg.AccountsPath())
	}
	s.accounts = wallet.NewRegistry(s.provider,
		wallet.WithStore(store),
		wallet.WithTimeout(timeouts.Call.Duration),
		wallet.WithLogger(log.Named("wallet")))

	s.queries = query.NewService(s.provider,
		query.WithReporter(s.reporter),
		query.WithTimeout(timeouts.Call.Duration),
		query.WithLogger(log.Named("query")))
	s.submitter = txn.NewSubmitter(s.provider, s.accounts,
		txn.WithReporter(s.reporter),
		txn.WithSubmitTimeout(timeouts.Submit.Duration),
		txn.WithReceiptWait(timeouts.ReceiptWait.Duration),
		txn.WithLogger(log.Named("txn")))
	s.events = events.NewManager(s.provider,
		events.WithReporter(s.reporter),
		events.WithPollInterval(cfg.PollInterval.Duration),
		events.WithMaxResubscribe(cfg.MaxResubscribe),
		events.WithCallTimeout(timeouts.Call.Duration),
		events.WithLogger(log.Named("events")))

	if _, err := s.discover(ctx); err != nil && !errors.Is(err, wallet.ErrNoAccounts) {
		s.shutdown()
		return nil, err
	}

	log.Info("session open",
		zap.String("network", network),
		zap.String("provider", string(s.resolver.Source())),
		zap.String("url", s.resolver.URL()),
		zap.Int("artifacts", len(s.artifacts.All())))
	return s, nil
}

// loadArtifacts reads the built-in ABIs, then the artifacts directory when
// it exists, then the deployments file.
func loadArtifacts(cfg *config.Config) (*contract.Registry, error) {
	reg := contract.NewRegistry()
	if err := reg.LoadBuiltins(); err != nil {
		return nil, err
	}
	if cfg.ArtifactsDir != "" {
		if fi, err := os.Stat(cfg.ArtifactsDir); err == nil && fi.IsDir() {
			if _, err := reg.LoadDir(cfg.ArtifactsDir); err != nil {
				return nil, fmt.Errorf("loading artifacts: %w", err)
			}
		}
	}
	if cfg.DeploymentsFile != "" {
		if err := reg.ApplyDeployments(cfg.DeploymentsFile); err != nil {
			return nil, fmt.Errorf("loading deployments: %w", err)
		}
	}
	return reg, nil
}

func (s *Session) readNetwork(ctx context.Context) (string, error) {
	ctx, cancel := chain.WithTimeout(ctx, s.timeouts.Call.Duration)
	defer cancel()
	id, err := s.provider.NetworkID(ctx)
	if err != nil {
		return "", chain.WrapRPC("net_version", err)
	}
	return id.String(), nil
}

func (s *Session) discover(ctx context.Context) ([]wallet.Account, error) {
	accts, err := s.accounts.Discover(ctx)
	switch {
	case errors.Is(err, wallet.ErrNoAccounts):
		s.log.Warn("no accounts exposed by the provider")
		s.reporter.SetStatus(StatusNoAccounts)
	case err != nil:
		s.log.Error("account discovery failed", zap.Error(err))
		s.reporter.SetStatus(StatusAccountsError)
	}
	return accts, err
}

// ---------------------------------------------------------------------------
// UI boundary
// ---------------------------------------------------------------------------

// SetStatus shows text on the status surface.
func (s *Session) SetStatus(text string) { s.reporter.SetStatus(text) }

// GetBalanceView reads owner's balance of the named token contract; an
// empty name means the configured token.
func (s *Session) GetBalanceView(ctx context.Context, owner common.Address, token string) (*big.Int, error) {
	if token == "" {
		token = s.cfg.TokenContract
	}
	b, err := s.bind(token)
	if err != nil {
		s.reporter.SetStatus(query.StatusBalanceError)
		return nil, err
	}
	snap, err := s.queries.BalanceOf(ctx, b, owner)
	if err != nil {
		return nil, err
	}
	return snap.Value, nil
}

// EtherBalance reads owner's ether balance in wei.
func (s *Session) EtherBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.queries.EtherBalance(ctx, owner)
}

// SubmitTransfer sends amount tokens from the active account to recipient.
func (s *Session) SubmitTransfer(ctx context.Context, recipient, amount string) (*txn.Transaction, error) {
	b, err := s.tokenForWrite()
	if err != nil {
		return nil, err
	}
	return s.submitter.Transfer(ctx, b, recipient, amount)
}

// SubmitApproval lets spender move up to amount tokens of the active account.
func (s *Session) SubmitApproval(ctx context.Context, spender, amount string) (*txn.Transaction, error) {
	b, err := s.tokenForWrite()
	if err != nil {
		return nil, err
	}
	return s.submitter.Approve(ctx, b, spender, amount)
}

// Allowance reads how many tokens spender may still move for owner.
func (s *Session) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	b, err := s.bind(s.cfg.TokenContract)
	if err != nil {
		s.reporter.SetStatus(query.StatusBalanceError)
		return nil, err
	}
	return s.queries.Allowance(ctx, b, owner, spender)
}

// WatchTokenEvents follows every event of the token contract from block 0.
// Events reach the status surface, and the returned subscription's channel
// when started with events.WithChannel.
func (s *Session) WatchTokenEvents(ctx context.Context, opts ...events.WatchOption) (*events.Subscription, error) {
	return s.WatchContract(ctx, s.cfg.TokenContract, events.Filter{}, opts...)
}

// WatchContract follows events of the named contract matching f. A bounded
// filter replays its range and ends.
func (s *Session) WatchContract(ctx context.Context, name string, f events.Filter, opts ...events.WatchOption) (*events.Subscription, error) {
	b, err := s.bind(name)
	if err != nil {
		s.reporter.SetStatus(query.StatusBalanceError)
		return nil, err
	}
	sub, err := s.events.Watch(ctx, b, f, opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watches {
		if w == sub {
			return sub, nil
		}
	}
	s.watches = append(s.watches, sub)
	go s.forget(sub)
	return sub, nil
}

// Watches returns how many feeds started through the session are running.
func (s *Session) Watches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// forget drops sub from the session once it stops.
func (s *Session) forget(sub *events.Subscription) {
	<-sub.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.watches {
		if w == sub {
			s.watches = append(s.watches[:i], s.watches[i+1:]...)
			return
		}
	}
}

// Info summarises the session for display.
type Info struct {
	Network  string
	Provider string
	Token    common.Address
	Exchange common.Address // zero when the exchange is not deployed
	Account  common.Address
	Ether    *big.Int
	Tokens   *big.Int
	Head     uint64
}

// EtherText formats the ether balance.
func (i Info) EtherText() string { return query.FormatEther(i.Ether, 4) }

// Info reads the contract addresses, the active account and its balances.
func (s *Session) Info(ctx context.Context) (Info, error) {
	if err := s.checkOpen(); err != nil {
		return Info{}, err
	}
	token, err := s.bind(s.cfg.TokenContract)
	if err != nil {
		return Info{}, err
	}
	acct, err := s.accounts.RequireActive()
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Network:  s.Network(),
		Provider: s.resolver.URL(),
		Token:    token.Address(),
		Account:  acct.Address,
	}
	if s.cfg.ExchangeContract != "" {
		if ex, err := s.bind(s.cfg.ExchangeContract); err == nil {
			info.Exchange = ex.Address()
		} else {
			s.log.Debug("exchange not bound", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.queries.EtherBalance(gctx, acct.Address)
		info.Ether = v
		return err
	})
	g.Go(func() error {
		snap, err := s.queries.BalanceOf(gctx, token, acct.Address)
		info.Tokens, info.Head = snap.Value, snap.Block
		return err
	})
	if err := g.Wait(); err != nil {
		return Info{}, err
	}
	return info, nil
}

// AddTokenToExchange lists the token at address under symbol on the
// exchange and waits for the outcome.
func (s *Session) AddTokenToExchange(ctx context.Context, symbol, address string) (*txn.Transaction, error) {
	if s.cfg.ExchangeContract == "" {
		return nil, fmt.Errorf("%w: no exchange contract configured", config.ErrInvalidConfig)
	}
	ex, err := s.bind(s.cfg.ExchangeContract)
	if err != nil {
		s.reporter.SetStatus(query.StatusBalanceError)
		return nil, err
	}
	addr, err := txn.ParseAddress(address)
	if err != nil {
		s.reporter.SetStatus(query.StatusBalanceError)
		return nil, err
	}

	tx, err := s.submitter.Submit(ctx, ex, "addToken", symbol, addr)
	if err != nil {
		return nil, err
	}
	st, err := tx.Wait(ctx)
	if err != nil {
		return tx, err
	}
	if st == txn.Confirmed {
		s.log.Info("token added to exchange", zap.String("symbol", symbol), zap.Stringer("token", addr))
		s.reporter.SetStatus(StatusTokenAdded)
	}
	return tx, nil
}

// ---------------------------------------------------------------------------
// accounts and network
// ---------------------------------------------------------------------------

// Accounts returns the known accounts.
func (s *Session) Accounts() []wallet.Account { return s.accounts.Accounts() }

// ActiveAccount returns the account used as sender.
func (s *Session) ActiveAccount() (wallet.Account, bool) { return s.accounts.Active() }

// SelectAccount makes addr the active account.
func (s *Session) SelectAccount(addr common.Address) error { return s.accounts.Select(addr) }

// AddExternalAccount records a watch-only account.
func (s *Session) AddExternalAccount(addr, label string) (wallet.Account, error) {
	return s.accounts.AddExternal(addr, label)
}

// RemoveExternalAccount forgets a watch-only account.
func (s *Session) RemoveExternalAccount(addr common.Address) error {
	return s.accounts.RemoveExternal(addr)
}

// Rediscover asks the provider for its accounts again. The first one
// becomes active.
func (s *Session) Rediscover(ctx context.Context) ([]wallet.Account, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.discover(ctx)
}

// SyncNetwork re-reads the network id. When it changed, every binding is
// dropped and the feeds started by WatchTokenEvents are stopped.
func (s *Session) SyncNetwork(ctx context.Context) (changed bool, err error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	network, err := s.readNetwork(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	prev := s.network
	s.network = network
	var stale []*events.Subscription
	if network != prev {
		stale, s.watches = s.watches, nil
	}
	s.mu.Unlock()

	if network == prev {
		return false, nil
	}
	s.cache.SetNetwork(network)
	for _, sub := range stale {
		s.events.Unwatch(sub)
	}
	s.log.Warn("network changed", zap.String("from", prev), zap.String("to", network))
	s.reporter.Statusf("Network changed to %s", network)
	return true, nil
}

// Head returns the latest block number.
func (s *Session) Head(ctx context.Context) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	ctx, cancel := chain.WithTimeout(ctx, s.timeouts.Call.Duration)
	defer cancel()
	n, err := s.provider.BlockNumber(ctx)
	if err != nil {
		return 0, chain.WrapRPC("eth_blockNumber", err)
	}
	return n, nil
}

// Network returns the current network id.
func (s *Session) Network() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network
}

// ---------------------------------------------------------------------------
// accessors
// ---------------------------------------------------------------------------

// Token returns the binding of the configured token contract.
func (s *Session) Token() (*contract.Binding, error) { return s.bind(s.cfg.TokenContract) }

// Exchange returns the binding of the configured exchange contract.
func (s *Session) Exchange() (*contract.Binding, error) { return s.bind(s.cfg.ExchangeContract) }

// Bind returns the binding of any loaded contract on the current network.
func (s *Session) Bind(name string) (*contract.Binding, error) { return s.bind(name) }

// Reporter returns the status surface.
func (s *Session) Reporter() *status.Reporter { return s.reporter }

// Events returns the event manager.
func (s *Session) Events() *events.Manager { return s.events }

// Transactions returns every transaction attempt of the session.
func (s *Session) Transactions() []*txn.Transaction { return s.submitter.History() }

// Close stops event feeds and transaction followers, then releases the
// provider. Calling Close again is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.shutdown()
	s.log.Debug("session closed")
}

func (s *Session) shutdown() {
	if s.events != nil {
		s.events.Close()
	}
	if s.submitter != nil {
		s.submitter.Close()
	}
	if s.resolver != nil {
		s.resolver.Close()
	}
	if s.ownsRep {
		s.reporter.Close()
	}
}

func (s *Session) bind(name string) (*contract.Binding, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	a, err := s.artifacts.Get(name)
	if err != nil {
		return nil, err
	}
	b, err := s.cache.Bind(a)
	if err != nil {
		s.log.Error("contract not bound", zap.String("contract", name), zap.Error(err))
		return nil, err
	}
	return b, nil
}

func (s *Session) tokenForWrite() (*contract.Binding, error) {
	b, err := s.bind(s.cfg.TokenContract)
	if err != nil {
		s.reporter.SetStatus(txn.StatusError)
		return nil, err
	}
	return b, nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// WaitTimeout is how long a front-end should wait for a transaction to
// settle.
func (s *Session) WaitTimeout() time.Duration {
	return s.timeouts.Submit.Duration + s.timeouts.ReceiptWait.Duration
}
