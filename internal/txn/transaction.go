package txn

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// State is a transaction lifecycle state.
type State string

const (
	Created   State = "created"
	Submitted State = "submitted"
	Pending   State = "pending"
	Confirmed State = "confirmed"
	Failed    State = "failed"
	Rejected  State = "rejected"
)

// next lists the states reachable from each state in one step.
var next = map[State][]State{
	Created:   {Submitted},
	Submitted: {Pending, Failed, Rejected},
	Pending:   {Confirmed, Failed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed || s == Rejected
}

func (s State) canMoveTo(to State) bool {
	for _, n := range next[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From   State
	To     State
	At     time.Time
	Detail string
}

// Transaction is the handle for one submission attempt. All accessors are
// safe for concurrent use.
type Transaction struct {
	id       string
	from     common.Address
	contract string
	to       common.Address
	method   string
	args     []interface{}
	value    *big.Int

	mu          sync.Mutex
	state       State
	hash        common.Hash
	receipt     *types.Receipt
	err         error
	transitions []Transition
	done        chan struct{}
	finished    bool
}

func newTransaction(from common.Address, contract string, to common.Address, method string, args []interface{}, value *big.Int) *Transaction {
	return &Transaction{
		id:       uuid.NewString(),
		from:     from,
		contract: contract,
		to:       to,
		method:   method,
		args:     args,
		value:    value,
		state:    Created,
		done:     make(chan struct{}),
	}
}

func (t *Transaction) ID() string           { return t.id }
func (t *Transaction) From() common.Address { return t.from }
func (t *Transaction) Contract() string     { return t.contract }
func (t *Transaction) To() common.Address   { return t.to }
func (t *Transaction) Method() string       { return t.method }
func (t *Transaction) Args() []interface{}  { return append([]interface{}(nil), t.args...) }

// Value returns the ether sent with the call, or nil.
func (t *Transaction) Value() *big.Int {
	if t.value == nil {
		return nil
	}
	return new(big.Int).Set(t.value)
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Hash returns the network-assigned hash; zero until Pending.
func (t *Transaction) Hash() common.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hash
}

// Receipt returns the mined receipt, or nil.
func (t *Transaction) Receipt() *types.Receipt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receipt
}

// Err returns the failure detail of a Failed or Rejected transaction.
func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Transitions returns the recorded state changes in order.
func (t *Transaction) Transitions() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Transition(nil), t.transitions...)
}

// States returns the sequence of states visited, starting with Created.
func (t *Transaction) States() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []State{Created}
	for _, tr := range t.transitions {
		out = append(out, tr.To)
	}
	return out
}

// Done is closed once the transaction reached a terminal state and the
// outcome was reported.
func (t *Transaction) Done() <-chan struct{} { return t.done }

// Wait blocks until a terminal state or ctx is done.
func (t *Transaction) Wait(ctx context.Context) (State, error) {
	select {
	case <-t.done:
		return t.State(), nil
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s %s.%s [%s]", t.id[:8], t.contract, t.method, t.State())
}

// advance moves to state to and runs apply under the lock. It refuses
// anything that skips, repeats or goes back a step.
func (t *Transaction) advance(to State, detail string, apply func()) (Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.canMoveTo(to) {
		return Transition{}, false
	}
	if apply != nil {
		apply()
	}
	tr := Transition{From: t.state, To: to, At: time.Now(), Detail: detail}
	t.transitions = append(t.transitions, tr)
	t.state = to
	return tr, true
}

// finish releases Done once the state is terminal.
func (t *Transaction) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() && !t.finished {
		t.finished = true
		close(t.done)
	}
}
