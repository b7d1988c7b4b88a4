package contract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3dapp/internal/contract"
)

// ---------------------------------------------------------------------------
// GetBuiltin / AllBuiltins
// ---------------------------------------------------------------------------

func TestBuiltinsRegistered(t *testing.T) {
	for _, id := range []string{contract.FixedSupplyToken, contract.Exchange} {
		b, ok := contract.GetBuiltin(id)
		require.True(t, ok, id)
		assert.NotEmpty(t, b.ABI)
	}
}

func TestGetBuiltinNotFound(t *testing.T) {
	_, ok := contract.GetBuiltin("this-id-does-not-exist-xyz")
	assert.False(t, ok)
}

func TestAllBuiltinsReturnsSorted(t *testing.T) {
	contract.RegisterBuiltin(contract.BuiltinKind{ID: "zzz-test"})
	contract.RegisterBuiltin(contract.BuiltinKind{ID: "aaa-test"})

	all := contract.AllBuiltins()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].ID, all[i].ID,
			"AllBuiltins must be sorted by ID: %s > %s", all[i-1].ID, all[i].ID)
	}
}

func TestRegisterBuiltinOverwrites(t *testing.T) {
	id := "test-overwrite-builtin"
	contract.RegisterBuiltin(contract.BuiltinKind{ID: id, Description: "First"})
	contract.RegisterBuiltin(contract.BuiltinKind{ID: id, Description: "Second"})

	b, ok := contract.GetBuiltin(id)
	require.True(t, ok)
	assert.Equal(t, "Second", b.Description)
}

// ---------------------------------------------------------------------------
// BuiltinKind.Artifact
// ---------------------------------------------------------------------------

func TestFixedSupplyTokenArtifact(t *testing.T) {
	b, _ := contract.GetBuiltin(contract.FixedSupplyToken)
	a, err := b.Artifact()
	require.NoError(t, err)

	assert.Equal(t, "FixedSupplyToken", a.Name)
	assert.Empty(t, a.Networks)

	// standard ERC-20 selectors
	assert.Equal(t, "70a08231", hexID(a.ABI.Methods["balanceOf"].ID))
	assert.Equal(t, "a9059cbb", hexID(a.ABI.Methods["transfer"].ID))
	assert.Equal(t, "095ea7b3", hexID(a.ABI.Methods["approve"].ID))
	assert.Equal(t, "dd62ed3e", hexID(a.ABI.Methods["allowance"].ID))

	assert.True(t, a.ABI.Methods["balanceOf"].IsConstant())
	assert.False(t, a.ABI.Methods["transfer"].IsConstant())
	assert.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		a.ABI.Events["Transfer"].ID.Hex())
}

func TestExchangeArtifact(t *testing.T) {
	b, _ := contract.GetBuiltin(contract.Exchange)
	a, err := b.Artifact()
	require.NoError(t, err)

	assert.Contains(t, a.ABI.Methods, "addToken")
	assert.True(t, a.ABI.Methods["depositEther"].IsPayable())
	assert.Contains(t, a.ABI.Events, "TokenAddedToSystem")
}

func TestBrokenBuiltinArtifactErrors(t *testing.T) {
	b := contract.BuiltinKind{ID: "broken", ABI: []contract.ABIEntry{
		{Name: "f", Type: "function", Inputs: []contract.ABIParam{{Name: "x", Type: "notatype"}}},
	}}
	_, err := b.Artifact()
	assert.Error(t, err)
}

func hexID(id []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(id)*2)
	for _, b := range id {
		out = append(out, digits[b>>4], digits[b&0xf])
	}
	return string(out)
}
