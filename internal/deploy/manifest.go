// Package deploy keeps the local deployments file in step with a published
// manifest of contract addresses.
package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidManifest is returned for manifests that cannot be used as a
// deployments file.
var ErrInvalidManifest = errors.New("invalid deployments manifest")

// Manifest maps contract name to network id to deployed address. It has the
// same shape as the deployments file read at session start.
type Manifest map[string]map[string]string

// Validate checks every entry names a network and a hex address.
func (m Manifest) Validate() error {
	for name, nets := range m {
		if name == "" {
			return fmt.Errorf("%w: empty contract name", ErrInvalidManifest)
		}
		for network, addr := range nets {
			if network == "" {
				return fmt.Errorf("%w: %s: empty network id", ErrInvalidManifest, name)
			}
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%w: %s network %s: bad address %q", ErrInvalidManifest, name, network, addr)
			}
		}
	}
	return nil
}

// Merge returns a copy of m with every entry of other applied on top.
func (m Manifest) Merge(other Manifest) Manifest {
	out := make(Manifest, len(m)+len(other))
	for _, src := range []Manifest{m, other} {
		for name, nets := range src {
			if out[name] == nil {
				out[name] = make(map[string]string, len(nets))
			}
			for network, addr := range nets {
				out[name][network] = addr
			}
		}
	}
	return out
}

// Names returns the contract names in m, sorted.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Address returns name's address on network.
func (m Manifest) Address(name, network string) (common.Address, bool) {
	addr, ok := m[name][network]
	if !ok {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// Load reads a deployments file. A missing file is an empty manifest.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidManifest, path, err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, m.Validate()
}

// Save writes m to path through a temp file so readers never see a partial
// manifest.
func Save(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".deployments-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
