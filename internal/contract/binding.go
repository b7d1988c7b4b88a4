package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
)

// Errors.
var (
	ErrContractNotDeployed = errors.New("contract not deployed on this network")
	ErrMethodNotFound      = errors.New("method not found in ABI")
	ErrWrongKind           = errors.New("wrong method kind")
	ErrDecode              = errors.New("abi decode failed")
	ErrEncode              = errors.New("abi encode failed")
)

// Binding is an artifact resolved to its deployed address on one network.
// Reads and write-call construction are distinct operations so a view
// method can never be sent as a transaction and vice versa.
type Binding struct {
	artifact *Artifact
	provider chain.Provider
	network  string
	address  common.Address
}

// Name returns the contract name.
func (b *Binding) Name() string { return b.artifact.Name }

// Address returns the deployed address.
func (b *Binding) Address() common.Address { return b.address }

// Network returns the network id the binding was resolved for.
func (b *Binding) Network() string { return b.network }

// ABI returns the parsed contract ABI.
func (b *Binding) ABI() *abi.ABI { return &b.artifact.ABI }

// Method looks up a method by name.
func (b *Binding) Method(name string) (abi.Method, error) {
	m, ok := b.artifact.ABI.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, b.Name(), name)
	}
	return m, nil
}

// IsRead reports whether method is a view/pure method of the contract.
func (b *Binding) IsRead(method string) bool {
	m, err := b.Method(method)
	return err == nil && m.IsConstant()
}

// Read executes a view/pure method through eth_call and returns the decoded
// outputs in ABI order.
func (b *Binding) Read(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	m, err := b.Method(method)
	if err != nil {
		return nil, err
	}
	if !m.IsConstant() {
		return nil, fmt.Errorf("%w: %s.%s is not a read method", ErrWrongKind, b.Name(), method)
	}

	data, err := b.pack(method, args...)
	if err != nil {
		return nil, err
	}

	to := b.address
	out, err := b.provider.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, chain.WrapRPC("eth_call "+b.Name()+"."+method, err)
	}

	vals, err := b.artifact.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrDecode, b.Name(), method, err)
	}
	return vals, nil
}

// WriteCall validates a state-changing call and returns the message to send
// from the given account. value may be nil for non-payable methods.
func (b *Binding) WriteCall(from common.Address, value *big.Int, method string, args ...interface{}) (ethereum.CallMsg, error) {
	m, err := b.Method(method)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	if m.IsConstant() {
		return ethereum.CallMsg{}, fmt.Errorf("%w: %s.%s is a read method", ErrWrongKind, b.Name(), method)
	}
	if value != nil && value.Sign() > 0 && !m.IsPayable() {
		return ethereum.CallMsg{}, fmt.Errorf("%w: %s.%s is not payable", ErrWrongKind, b.Name(), method)
	}

	data, err := b.pack(method, args...)
	if err != nil {
		return ethereum.CallMsg{}, err
	}

	to := b.address
	return ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}, nil
}

// EventID returns the topic hash of the named event.
func (b *Binding) EventID(name string) (common.Hash, error) {
	ev, ok := b.artifact.ABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: event %s.%s", ErrMethodNotFound, b.Name(), name)
	}
	return ev.ID, nil
}

// DecodeLog decodes a log emitted by this contract into the event name and
// its arguments keyed by ABI name. Indexed and non-indexed arguments are
// merged into one map.
func (b *Binding) DecodeLog(l types.Log) (string, map[string]interface{}, error) {
	if len(l.Topics) == 0 {
		return "", nil, fmt.Errorf("%w: anonymous log", ErrDecode)
	}
	ev, err := b.artifact.ABI.EventByID(l.Topics[0])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: unknown event %s", ErrDecode, b.Name(), l.Topics[0].Hex())
	}

	args := make(map[string]interface{}, len(ev.Inputs))
	if err := ev.Inputs.UnpackIntoMap(args, l.Data); err != nil {
		return ev.Name, nil, fmt.Errorf("%w: %s.%s data: %v", ErrDecode, b.Name(), ev.Name, err)
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return ev.Name, nil, fmt.Errorf("%w: %s.%s: %d topics for %d indexed args", ErrDecode, b.Name(), ev.Name, len(l.Topics)-1, len(indexed))
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return ev.Name, nil, fmt.Errorf("%w: %s.%s topics: %v", ErrDecode, b.Name(), ev.Name, err)
	}
	return ev.Name, args, nil
}

func (b *Binding) pack(method string, args ...interface{}) ([]byte, error) {
	data, err := b.artifact.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrEncode, b.Name(), method, err)
	}
	return data, nil
}
