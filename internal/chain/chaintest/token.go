package chaintest

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mohsinsiddi/w3dapp/internal/contract"
)

var (
	tokenABI    = mustArtifactABI(contract.FixedSupplyToken)
	exchangeABI = mustArtifactABI(contract.Exchange)
)

var errBadCall = errors.New("execution reverted")

// token is the state of one FixedSupplyToken.
type token struct {
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func newToken(owner common.Address, supply *big.Int) *token {
	return &token{
		supply:     new(big.Int).Set(supply),
		balances:   map[common.Address]*big.Int{owner: new(big.Int).Set(supply)},
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *token) balanceOf(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (t *token) allowance(owner, spender common.Address) *big.Int {
	if b, ok := t.allowances[owner][spender]; ok {
		return b
	}
	return new(big.Int)
}

func (t *token) call(data []byte) ([]byte, error) {
	m, args, err := decodeCall(tokenABI, data)
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "name":
		return m.Outputs.Pack("Example Fixed Supply Token")
	case "symbol":
		return m.Outputs.Pack("FIXED")
	case "decimals":
		return m.Outputs.Pack(uint8(18))
	case "totalSupply":
		return m.Outputs.Pack(new(big.Int).Set(t.supply))
	case "balanceOf":
		return m.Outputs.Pack(new(big.Int).Set(t.balanceOf(args[0].(common.Address))))
	case "allowance":
		return m.Outputs.Pack(new(big.Int).Set(t.allowance(args[0].(common.Address), args[1].(common.Address))))
	default:
		// simulated write: report success without touching state
		return m.Outputs.Pack(true)
	}
}

func (t *token) transact(sender common.Address, data []byte) ([]types.Log, error) {
	m, args, err := decodeCall(tokenABI, data)
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "transfer":
		to, amount := args[0].(common.Address), args[1].(*big.Int)
		if err := t.move(sender, to, amount); err != nil {
			return nil, err
		}
		return []types.Log{tokenEvent("Transfer", sender, to, amount)}, nil

	case "approve":
		spender, amount := args[0].(common.Address), args[1].(*big.Int)
		if t.allowances[sender] == nil {
			t.allowances[sender] = make(map[common.Address]*big.Int)
		}
		t.allowances[sender][spender] = new(big.Int).Set(amount)
		return []types.Log{tokenEvent("Approval", sender, spender, amount)}, nil

	case "transferFrom":
		from, to, amount := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
		allowed := t.allowance(from, sender)
		if allowed.Cmp(amount) < 0 {
			return nil, fmt.Errorf("%w: allowance exceeded", errBadCall)
		}
		if err := t.move(from, to, amount); err != nil {
			return nil, err
		}
		t.allowances[from][sender] = new(big.Int).Sub(allowed, amount)
		return []types.Log{tokenEvent("Transfer", from, to, amount)}, nil

	default:
		return nil, nil
	}
}

func (t *token) move(from, to common.Address, amount *big.Int) error {
	bal := t.balanceOf(from)
	if amount.Sign() < 0 || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient balance", errBadCall)
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	return nil
}

func tokenEvent(name string, a, b common.Address, value *big.Int) types.Log {
	return buildLog(tokenABI, name, []common.Hash{addrTopic(a), addrTopic(b)}, value)
}

// ---------------------------------------------------------------------------
// exchange
// ---------------------------------------------------------------------------

type exchange struct {
	symbols []string
	tokens  map[string]common.Address
}

func newExchange() *exchange {
	return &exchange{tokens: make(map[string]common.Address)}
}

func (e *exchange) call(data []byte) ([]byte, error) {
	m, args, err := decodeCall(exchangeABI, data)
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "hasToken":
		_, ok := e.tokens[args[0].(string)]
		return m.Outputs.Pack(ok)
	case "getBalance", "getEthBalanceInWei":
		return m.Outputs.Pack(new(big.Int))
	default:
		return nil, nil
	}
}

func (e *exchange) transact(_ common.Address, data []byte) ([]types.Log, error) {
	m, args, err := decodeCall(exchangeABI, data)
	if err != nil {
		return nil, err
	}
	if m.Name != "addToken" {
		return nil, nil
	}

	symbol, addr := args[0].(string), args[1].(common.Address)
	if _, ok := e.tokens[symbol]; ok {
		return nil, fmt.Errorf("%w: token %s already listed", errBadCall, symbol)
	}
	e.tokens[symbol] = addr
	e.symbols = append(e.symbols, symbol)

	idx := big.NewInt(int64(len(e.symbols)))
	ts := big.NewInt(time.Now().Unix())
	return []types.Log{buildLog(exchangeABI, "TokenAddedToSystem", nil, idx, symbol, ts)}, nil
}

// ---------------------------------------------------------------------------
// abi helpers
// ---------------------------------------------------------------------------

func decodeCall(a abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, errBadCall
	}
	m, err := a.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown selector", errBadCall)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad calldata: %v", errBadCall, err)
	}
	return m, args, nil
}

func buildLog(a abi.ABI, event string, indexed []common.Hash, data ...interface{}) types.Log {
	ev, ok := a.Events[event]
	if !ok {
		panic("chaintest: unknown event " + event)
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Topics: append([]common.Hash{ev.ID}, indexed...),
		Data:   packed,
	}
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// EventLog builds a log for event of the named built-in contract, as the
// contract at addr would emit it. Tests feed it to Broadcast.
func EventLog(contractName string, addr common.Address, event string, indexed []common.Address, data ...interface{}) types.Log {
	a := mustArtifactABI(contractName)
	topics := make([]common.Hash, 0, len(indexed))
	for _, ia := range indexed {
		topics = append(topics, addrTopic(ia))
	}
	l := buildLog(a, event, topics, data...)
	l.Address = addr
	return l
}
