package contract

// FixedSupplyToken is the ERC-20 token the dapp manages: a fixed supply
// minted to the deployer, symbol "FIXED", 18 decimals.
//
// Function selectors:
//
//	name()              → 0x06fdde03
//	symbol()            → 0x95d89b41
//	decimals()          → 0x313ce567
//	totalSupply()       → 0x18160ddd
//	balanceOf(address)  → 0x70a08231
//	allowance(a,a)      → 0xdd62ed3e
//	transfer(a,u256)    → 0xa9059cbb
//	approve(a,u256)     → 0x095ea7b3
//	transferFrom(a,a,u) → 0x23b872dd
func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          FixedSupplyToken,
		Description: "Fixed supply ERC-20 token (FIXED).",
		ABI:         fixedSupplyTokenABI,
	})
}

// FixedSupplyToken is the artifact name of the managed token.
const FixedSupplyToken = "FixedSupplyToken"

var fixedSupplyTokenABI = []ABIEntry{
	// ── Read ─────────────────────────────────────────────────────────────────
	{
		Name: "name", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "string"}},
		StateMutability: "view",
	},
	{
		Name: "symbol", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "string"}},
		StateMutability: "view",
	},
	{
		Name: "decimals", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "uint8"}},
		StateMutability: "view",
	},
	{
		Name: "totalSupply", Type: "function",
		Outputs:         []ABIParam{{Name: "totalSupply", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "balanceOf", Type: "function",
		Inputs:          []ABIParam{{Name: "_owner", Type: "address"}},
		Outputs:         []ABIParam{{Name: "balance", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "allowance", Type: "function",
		Inputs:          []ABIParam{{Name: "_owner", Type: "address"}, {Name: "_spender", Type: "address"}},
		Outputs:         []ABIParam{{Name: "remaining", Type: "uint256"}},
		StateMutability: "view",
	},
	// ── Write ────────────────────────────────────────────────────────────────
	{
		Name: "transfer", Type: "function",
		Inputs:          []ABIParam{{Name: "_to", Type: "address"}, {Name: "_amount", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "success", Type: "bool"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "approve", Type: "function",
		Inputs:          []ABIParam{{Name: "_spender", Type: "address"}, {Name: "_amount", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "success", Type: "bool"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "transferFrom", Type: "function",
		Inputs:          []ABIParam{{Name: "_from", Type: "address"}, {Name: "_to", Type: "address"}, {Name: "_amount", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "success", Type: "bool"}},
		StateMutability: "nonpayable",
	},
	// ── Events ───────────────────────────────────────────────────────────────
	{
		Name: "Transfer", Type: "event",
		Inputs: []ABIParam{
			{Name: "_from", Type: "address", Indexed: true},
			{Name: "_to", Type: "address", Indexed: true},
			{Name: "_value", Type: "uint256"},
		},
	},
	{
		Name: "Approval", Type: "event",
		Inputs: []ABIParam{
			{Name: "_owner", Type: "address", Indexed: true},
			{Name: "_spender", Type: "address", Indexed: true},
			{Name: "_value", Type: "uint256"},
		},
	},
}
