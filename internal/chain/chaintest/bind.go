package chaintest

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3dapp/internal/contract"
)

// Network returns the network id as the string used for artifact lookup.
func (c *Chain) Network() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.networkID.String()
}

// Artifact returns the built-in artifact name with addr recorded as its
// deployment on this chain's network.
func (c *Chain) Artifact(name string, addr common.Address) (*contract.Artifact, error) {
	b, ok := contract.GetBuiltin(name)
	if !ok {
		return nil, contract.ErrContractNotFound
	}
	a, err := b.Artifact()
	if err != nil {
		return nil, err
	}
	return a.WithDeployment(c.Network(), addr), nil
}

// Bind binds the built-in contract name deployed at addr through a fresh
// cache. It makes no provider calls.
func (c *Chain) Bind(name string, addr common.Address) (*contract.Binding, error) {
	a, err := c.Artifact(name, addr)
	if err != nil {
		return nil, err
	}
	return contract.NewCache(c, c.Network()).Bind(a)
}
