package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidArtifact is returned for build artifacts that cannot be used.
var ErrInvalidArtifact = errors.New("invalid contract artifact")

// Deployment records where an artifact lives on one network.
type Deployment struct {
	Address         common.Address
	TransactionHash string
}

// Artifact is a compiled contract description: name, ABI and the address it
// was deployed at per network id. Artifacts are not modified once loaded;
// WithDeployment returns a copy.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	RawABI   json.RawMessage
	Networks map[string]Deployment // key: network id, e.g. "5777"
}

// truffleArtifact is the subset of a truffle build/contracts/*.json file we read.
type truffleArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Networks     map[string]struct {
		Address         string `json:"address"`
		TransactionHash string `json:"transactionHash"`
	} `json:"networks"`
}

// ParseArtifact decodes a truffle build artifact.
func ParseArtifact(data []byte) (*Artifact, error) {
	var ta truffleArtifact
	if err := json.Unmarshal(data, &ta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if ta.ContractName == "" {
		return nil, fmt.Errorf("%w: missing contractName", ErrInvalidArtifact)
	}
	if len(ta.ABI) == 0 {
		return nil, fmt.Errorf("%w: %s has no abi", ErrInvalidArtifact, ta.ContractName)
	}

	parsed, err := abi.JSON(bytes.NewReader(ta.ABI))
	if err != nil {
		return nil, fmt.Errorf("%w: %s abi: %v", ErrInvalidArtifact, ta.ContractName, err)
	}

	a := &Artifact{
		Name:     ta.ContractName,
		ABI:      parsed,
		RawABI:   ta.ABI,
		Networks: make(map[string]Deployment, len(ta.Networks)),
	}
	for id, n := range ta.Networks {
		if !common.IsHexAddress(n.Address) {
			return nil, fmt.Errorf("%w: %s network %s: bad address %q", ErrInvalidArtifact, ta.ContractName, id, n.Address)
		}
		a.Networks[id] = Deployment{
			Address:         common.HexToAddress(n.Address),
			TransactionHash: n.TransactionHash,
		}
	}
	return a, nil
}

// LoadArtifact reads and parses a truffle build artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// AddressOn returns the deployed address for network, if any.
func (a *Artifact) AddressOn(network string) (common.Address, bool) {
	d, ok := a.Networks[network]
	return d.Address, ok
}

// WithDeployment returns a copy of a with addr recorded for network.
func (a *Artifact) WithDeployment(network string, addr common.Address) *Artifact {
	cp := *a
	cp.Networks = maps.Clone(a.Networks)
	if cp.Networks == nil {
		cp.Networks = map[string]Deployment{}
	}
	cp.Networks[network] = Deployment{Address: addr}
	return &cp
}
