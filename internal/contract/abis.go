package contract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABIEntry is one ABI entry (function, event, etc.) in the solc JSON shape.
type ABIEntry struct {
	Name            string     `json:"name,omitempty"`
	Type            string     `json:"type"`
	Inputs          []ABIParam `json:"inputs"`
	Outputs         []ABIParam `json:"outputs,omitempty"`
	StateMutability string     `json:"stateMutability,omitempty"`
	Anonymous       bool       `json:"anonymous,omitempty"`
}

// ABIParam is a parameter in an ABI entry.
type ABIParam struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
}

// BuiltinKind describes a contract whose ABI ships inside the binary.
// Each built-in registers itself from init() in its own <name>_abi.go file.
type BuiltinKind struct {
	ID          string     // artifact name, e.g. "FixedSupplyToken"
	Description string     // one-line summary
	ABI         []ABIEntry // full ABI, ready to use
}

var builtinRegistry = map[string]BuiltinKind{}

// RegisterBuiltin adds a built-in ABI to the global registry.
// Call this from init() in the file that defines the ABI.
func RegisterBuiltin(b BuiltinKind) {
	builtinRegistry[b.ID] = b
}

// GetBuiltin returns a built-in by ID. ok is false if not found.
func GetBuiltin(id string) (BuiltinKind, bool) {
	b, ok := builtinRegistry[id]
	return b, ok
}

// AllBuiltins returns all registered built-ins sorted by ID.
func AllBuiltins() []BuiltinKind {
	out := make([]BuiltinKind, 0, len(builtinRegistry))
	for _, b := range builtinRegistry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Artifact turns a built-in into an artifact with no deployed addresses.
// Addresses come from ApplyDeployments or a matching build artifact.
func (b BuiltinKind) Artifact() (*Artifact, error) {
	raw, err := json.Marshal(b.ABI)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("builtin %s: %w", b.ID, err)
	}
	return &Artifact{
		Name:     b.ID,
		ABI:      parsed,
		RawABI:   raw,
		Networks: map[string]Deployment{},
	}, nil
}
