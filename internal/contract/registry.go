package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrContractNotFound is returned when no artifact is known under a name.
var ErrContractNotFound = errors.New("contract not found")

// Registry holds the artifacts available to a session, keyed by contract name.
type Registry struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{artifacts: make(map[string]*Artifact)}
}

// LoadBuiltins adds every built-in ABI that is not already present.
func (r *Registry) LoadBuiltins() error {
	for _, b := range AllBuiltins() {
		if _, err := r.Get(b.ID); err == nil {
			continue
		}
		a, err := b.Artifact()
		if err != nil {
			return err
		}
		r.Add(a)
	}
	return nil
}

// LoadDir reads every *.json truffle artifact in dir. Artifacts replace
// built-ins and earlier entries of the same name. Returns the number loaded.
func (r *Registry) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	sort.Strings(paths)

	n := 0
	for _, p := range paths {
		a, err := LoadArtifact(p)
		if err != nil {
			return n, err
		}
		r.Add(a)
		n++
	}
	return n, nil
}

// ApplyDeployments reads a deploy-time address file of the form
// {"Name": {"networkId": "0xaddr"}} and records each address.
func (r *Registry) ApplyDeployments(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var deployments map[string]map[string]string
	if err := json.Unmarshal(data, &deployments); err != nil {
		return fmt.Errorf("parsing deployments %s: %w", path, err)
	}

	for name, nets := range deployments {
		for network, addr := range nets {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%w: %s network %s: bad address %q", ErrInvalidArtifact, name, network, addr)
			}
			if err := r.SetAddress(name, network, common.HexToAddress(addr)); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetAddress records addr as name's deployment on network.
func (r *Registry) SetAddress(name, network string, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContractNotFound, name)
	}
	r.artifacts[name] = a.WithDeployment(network, addr)
	return nil
}

// Add adds or replaces an artifact.
func (r *Registry) Add(a *Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[a.Name] = a
}

// Get returns an artifact by name.
func (r *Registry) Get(name string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, name)
	}
	return a, nil
}

// All returns all artifacts sorted by name.
func (r *Registry) All() []*Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out
}
