package contract

// Exchange is the token exchange the dapp lists tokens on. Only the parts
// the session drives (token listing, deposits and balance views) plus its
// events are described here.
func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          Exchange,
		Description: "Token exchange with per-symbol token listing.",
		ABI:         exchangeABI,
	})
}

// Exchange is the artifact name of the exchange contract.
const Exchange = "Exchange"

var exchangeABI = []ABIEntry{
	// ── Read ─────────────────────────────────────────────────────────────────
	{
		Name: "hasToken", Type: "function",
		Inputs:          []ABIParam{{Name: "symbolName", Type: "string"}},
		Outputs:         []ABIParam{{Name: "", Type: "bool"}},
		StateMutability: "view",
	},
	{
		Name: "getBalance", Type: "function",
		Inputs:          []ABIParam{{Name: "symbolName", Type: "string"}},
		Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "getEthBalanceInWei", Type: "function",
		Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
		StateMutability: "view",
	},
	// ── Write ────────────────────────────────────────────────────────────────
	{
		Name: "addToken", Type: "function",
		Inputs:          []ABIParam{{Name: "symbolName", Type: "string"}, {Name: "erc20TokenAddress", Type: "address"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "depositEther", Type: "function",
		StateMutability: "payable",
	},
	{
		Name: "withdrawEther", Type: "function",
		Inputs:          []ABIParam{{Name: "amountInWei", Type: "uint256"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "depositToken", Type: "function",
		Inputs:          []ABIParam{{Name: "symbolName", Type: "string"}, {Name: "amount", Type: "uint256"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "withdrawToken", Type: "function",
		Inputs:          []ABIParam{{Name: "symbolName", Type: "string"}, {Name: "amount", Type: "uint256"}},
		StateMutability: "nonpayable",
	},
	// ── Events ───────────────────────────────────────────────────────────────
	{
		Name: "TokenAddedToSystem", Type: "event",
		Inputs: []ABIParam{
			{Name: "_symbolIndex", Type: "uint256"},
			{Name: "_token", Type: "string"},
			{Name: "_timestamp", Type: "uint256"},
		},
	},
	{
		Name: "DepositForTokenReceived", Type: "event",
		Inputs: []ABIParam{
			{Name: "_from", Type: "address", Indexed: true},
			{Name: "_symbolIndex", Type: "uint256", Indexed: true},
			{Name: "_amount", Type: "uint256"},
			{Name: "_timestamp", Type: "uint256"},
		},
	},
	{
		Name: "WithdrawalToken", Type: "event",
		Inputs: []ABIParam{
			{Name: "_to", Type: "address", Indexed: true},
			{Name: "_symbolIndex", Type: "uint256", Indexed: true},
			{Name: "_amount", Type: "uint256"},
			{Name: "_timestamp", Type: "uint256"},
		},
	},
	{
		Name: "DepositForEthReceived", Type: "event",
		Inputs: []ABIParam{
			{Name: "_from", Type: "address", Indexed: true},
			{Name: "_amount", Type: "uint256"},
			{Name: "_timestamp", Type: "uint256"},
		},
	},
	{
		Name: "WithdrawalEth", Type: "event",
		Inputs: []ABIParam{
			{Name: "_to", Type: "address", Indexed: true},
			{Name: "_amount", Type: "uint256"},
			{Name: "_timestamp", Type: "uint256"},
		},
	},
}
