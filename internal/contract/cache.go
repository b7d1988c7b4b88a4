package contract

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
)

// Cache memoizes bindings per (contract name, network id). A binding is
// created at most once per key and lives until the network id changes.
type Cache struct {
	mu       sync.Mutex
	provider chain.Provider
	network  string
	bindings map[string]*Binding // key: "name@network"
	log      *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) { c.log = logging.OrNop(l) }
}

// NewCache creates a Cache bound to provider and the given network id.
func NewCache(provider chain.Provider, network string, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		network:  network,
		bindings: make(map[string]*Binding),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind returns the binding for artifact on the current network, creating it
// on first use. It makes no provider calls.
func (c *Cache) Bind(a *Artifact) (*Binding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(a.Name, c.network)
	if b, ok := c.bindings[k]; ok {
		return b, nil
	}

	addr, ok := a.AddressOn(c.network)
	if !ok {
		return nil, fmt.Errorf("%w: %s on network %s", ErrContractNotDeployed, a.Name, c.network)
	}

	b := &Binding{
		artifact: a,
		provider: c.provider,
		network:  c.network,
		address:  addr,
	}
	c.bindings[k] = b
	c.log.Debug("contract bound",
		zap.String("contract", a.Name),
		zap.String("network", c.network),
		zap.Stringer("address", addr))
	return b, nil
}

// SetNetwork switches the cache to network id. Changing the id drops every
// binding; setting the same id is a no-op.
func (c *Cache) SetNetwork(network string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if network == c.network {
		return
	}
	c.log.Info("network changed, dropping bindings",
		zap.String("from", c.network),
		zap.String("to", network),
		zap.Int("dropped", len(c.bindings)))
	c.network = network
	c.bindings = make(map[string]*Binding)
}

// Network returns the current network id.
func (c *Cache) Network() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}

// Len returns the number of live bindings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bindings)
}

func key(name, network string) string {
	return name + "@" + network
}
