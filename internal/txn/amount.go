package txn

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// ParseAmount parses a base-10, non-negative integer that fits in uint256.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrValidation)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: amount %q is not a non-negative integer", ErrValidation, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("%w: amount %q out of range", ErrValidation, s)
	}
	return v, nil
}

// ParseAddress checks s is a 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", ErrValidation, s)
	}
	return common.HexToAddress(s), nil
}
