package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
)

// Account sources.
const (
	SourceDiscovered = "discovered" // reported by the provider (eth_accounts)
	SourceExternal   = "external"   // supplied by the user, watch-only
)

// Errors.
var (
	ErrNoAccounts      = errors.New("provider returned no accounts")
	ErrProviderError   = errors.New("account discovery failed")
	ErrNoActiveAccount = errors.New("no active account")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrInvalidAddress  = errors.New("invalid address")
)

// Account is an address plus where it came from.
type Account struct {
	Address common.Address `json:"address"`
	Source  string         `json:"source"`
	Label   string         `json:"label,omitempty"`
	AddedAt string         `json:"added_at,omitempty"`
}

// Store is an interface for persisting externally supplied accounts.
type Store interface {
	Load() ([]Account, error)
	Save([]Account) error
}

// Registry tracks the discovered accounts and the single active account.
// The active account changes only through Discover or Select.
type Registry struct {
	mu         sync.Mutex
	provider   chain.Provider
	store      Store
	discovered []Account
	external   []Account
	active     *Account
	loaded     bool
	timeout    time.Duration
	log        *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithInMemoryStore uses an in-memory store (useful for tests).
func WithInMemoryStore() Option {
	return func(r *Registry) {
		r.store = &memStore{}
	}
}

// WithStore sets a custom store.
func WithStore(s Store) Option {
	return func(r *Registry) {
		r.store = s
	}
}

// WithTimeout bounds each eth_accounts call.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = logging.OrNop(l)
	}
}

// NewRegistry creates an account registry over provider.
func NewRegistry(provider chain.Provider, opts ...Option) *Registry {
	r := &Registry{
		provider: provider,
		store:    &memStore{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover asks the provider for its accounts. On success the discovered
// sequence is replaced and the first entry becomes active. An empty result
// returns ErrNoAccounts and a failed call ErrProviderError; in both cases
// the registry is left untouched.
func (r *Registry) Discover(ctx context.Context) ([]Account, error) {
	ctx, cancel := chain.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.provider.Accounts(ctx)
	if err != nil {
		r.log.Warn("account discovery failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderError, err)
	}
	if len(addrs) == 0 {
		r.log.Info("provider reported no accounts")
		return nil, ErrNoAccounts
	}

	accts := make([]Account, len(addrs))
	for i, a := range addrs {
		accts[i] = Account{Address: a, Source: SourceDiscovered}
	}

	r.mu.Lock()
	r.discovered = accts
	first := accts[0]
	r.active = &first
	r.mu.Unlock()

	r.log.Info("accounts discovered",
		zap.Int("count", len(accts)),
		zap.Stringer("active", first.Address))
	return append([]Account(nil), accts...), nil
}

// Active returns the active account, if any.
func (r *Registry) Active() (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Account{}, false
	}
	return *r.active, true
}

// RequireActive returns the active account or ErrNoActiveAccount.
func (r *Registry) RequireActive() (Account, error) {
	a, ok := r.Active()
	if !ok {
		return Account{}, ErrNoActiveAccount
	}
	return a, nil
}

// Accounts returns discovered accounts in provider order, then external ones.
func (r *Registry) Accounts() []Account {
	r.load() //nolint:errcheck
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Account, 0, len(r.discovered)+len(r.external))
	out = append(out, r.discovered...)
	out = append(out, r.external...)
	return out
}

// Select makes addr the active account. addr must be known to the registry.
func (r *Registry) Select(addr common.Address) error {
	if err := r.load(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, list := range [][]Account{r.discovered, r.external} {
		for _, a := range list {
			if a.Address == addr {
				sel := a
				r.active = &sel
				r.log.Info("active account selected", zap.Stringer("address", addr), zap.String("source", a.Source))
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrAccountNotFound, addr.Hex())
}

// AddExternal records a user-supplied account and persists it. It does not
// change the active account.
func (r *Registry) AddExternal(hexAddr, label string) (Account, error) {
	if !common.IsHexAddress(hexAddr) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAddress, hexAddr)
	}
	if err := r.load(); err != nil {
		return Account{}, err
	}
	addr := common.HexToAddress(hexAddr)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range [][]Account{r.discovered, r.external} {
		for _, a := range list {
			if a.Address == addr {
				return Account{}, fmt.Errorf("%w: %s", ErrAccountExists, addr.Hex())
			}
		}
	}

	a := Account{
		Address: addr,
		Source:  SourceExternal,
		Label:   label,
		AddedAt: time.Now().UTC().Format(time.RFC3339),
	}
	next := append(append([]Account(nil), r.external...), a)
	if err := r.store.Save(next); err != nil {
		return Account{}, err
	}
	r.external = next
	return a, nil
}

// RemoveExternal forgets a user-supplied account. Removing the active
// account leaves the registry with none active.
func (r *Registry) RemoveExternal(addr common.Address) error {
	if err := r.load(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, a := range r.external {
		if a.Address != addr {
			continue
		}
		next := append(r.external[:i:i], r.external[i+1:]...)
		if err := r.store.Save(next); err != nil {
			return err
		}
		r.external = next
		if r.active != nil && r.active.Address == addr && r.active.Source == SourceExternal {
			r.active = nil
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAccountNotFound, addr.Hex())
}

// --- internal ---

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	accts, err := r.store.Load()
	if err != nil {
		return err
	}
	r.external = nil
	for _, a := range accts {
		a.Source = SourceExternal
		r.external = append(r.external, a)
	}
	r.loaded = true
	return nil
}

// --- in-memory store ---

type memStore struct {
	accounts []Account
}

func (s *memStore) Load() ([]Account, error) {
	return s.accounts, nil
}

func (s *memStore) Save(accounts []Account) error {
	s.accounts = append([]Account(nil), accounts...)
	return nil
}

// --- JSON file store ---

// JSONStore persists external accounts to a JSON file.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed account store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Load() ([]Account, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *JSONStore) Save(accounts []Account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
