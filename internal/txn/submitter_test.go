package txn_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/chain/chaintest"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/wallet"
)

type fixture struct {
	chain     *chaintest.Chain
	token     *contract.Binding
	accounts  *wallet.Registry
	submitter *txn.Submitter
}

// newFixture deploys a token with 100 units for Alice, discovers accounts
// (Alice active) and builds a fast-polling submitter.
func newFixture(t *testing.T, opts ...txn.Option) *fixture {
	t.Helper()
	c := chaintest.New()
	token, err := c.Bind(contract.FixedSupplyToken, c.DeployToken(chaintest.Alice, big.NewInt(100)))
	require.NoError(t, err)

	accounts := wallet.NewRegistry(c)
	_, err = accounts.Discover(context.Background())
	require.NoError(t, err)

	opts = append([]txn.Option{txn.WithBackoff(time.Millisecond, 5*time.Millisecond), txn.WithReceiptWait(5 * time.Second)}, opts...)
	s := txn.NewSubmitter(c, accounts, opts...)
	t.Cleanup(s.Close)
	c.ResetCalls()
	return &fixture{chain: c, token: token, accounts: accounts, submitter: s}
}

func wait(t *testing.T, tx *txn.Transaction) txn.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := tx.Wait(ctx)
	require.NoError(t, err, "transaction did not reach a terminal state")
	return st
}

// ---------------------------------------------------------------------------
// Happy path
// ---------------------------------------------------------------------------

func TestTransferConfirmed(t *testing.T) {
	f := newFixture(t)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Carol.Hex(), "10")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, txn.Confirmed, wait(t, tx))
	assert.Equal(t, []txn.State{txn.Created, txn.Submitted, txn.Pending, txn.Confirmed}, tx.States())
	assert.Equal(t, chaintest.Alice, tx.From())
	assert.Equal(t, f.token.Address(), tx.To())
	assert.Equal(t, "transfer", tx.Method())
	assert.NotEqual(t, common.Hash{}, tx.Hash())
	require.NotNil(t, tx.Receipt())
	assert.NoError(t, tx.Err())
	assert.Len(t, tx.ID(), 36)

	assert.Equal(t, int64(90), f.chain.TokenBalance(f.token.Address(), chaintest.Alice).Int64())
	assert.Equal(t, int64(10), f.chain.TokenBalance(f.token.Address(), chaintest.Carol).Int64())
}

func TestApproveSetsAllowance(t *testing.T) {
	f := newFixture(t)

	tx, err := f.submitter.Approve(context.Background(), f.token, chaintest.Bob.Hex(), "42")
	require.NoError(t, err)
	require.Equal(t, txn.Confirmed, wait(t, tx))

	out, err := f.token.Read(context.Background(), common.Address{}, "allowance", chaintest.Alice, chaintest.Bob)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out[0].(*big.Int).Int64())
}

func TestPendingUntilReceiptVisible(t *testing.T) {
	f := newFixture(t)
	f.chain.SetPendingPolls(3)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	require.Equal(t, txn.Confirmed, wait(t, tx))
	assert.Equal(t, 4, f.chain.CallCount(chaintest.MethodReceipt))
}

func TestTransitionsCarryDetail(t *testing.T) {
	f := newFixture(t)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	wait(t, tx)

	trs := tx.Transitions()
	require.Len(t, trs, 3)
	assert.Equal(t, txn.Created, trs[0].From)
	assert.Equal(t, tx.Hash().Hex(), trs[1].Detail)
	for i := 1; i < len(trs); i++ {
		assert.False(t, trs[i].At.Before(trs[i-1].At))
		assert.Equal(t, trs[i-1].To, trs[i].From)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidationNeverReachesProvider(t *testing.T) {
	f := newFixture(t)

	cases := []struct{ to, amount string }{
		{"0x123", "10"},
		{"not-an-address", "10"},
		{chaintest.Bob.Hex(), "-5"},
		{chaintest.Bob.Hex(), "1.5"},
		{chaintest.Bob.Hex(), "ten"},
		{chaintest.Bob.Hex(), ""},
		{chaintest.Bob.Hex(), "1e3"},
	}
	for _, tc := range cases {
		tx, err := f.submitter.Transfer(context.Background(), f.token, tc.to, tc.amount)
		assert.ErrorIs(t, err, txn.ErrValidation, "%s %s", tc.to, tc.amount)
		assert.Nil(t, tx)

		tx, err = f.submitter.Approve(context.Background(), f.token, tc.to, tc.amount)
		assert.ErrorIs(t, err, txn.ErrValidation)
		assert.Nil(t, tx)
	}

	assert.Empty(t, f.chain.Calls())
	assert.Empty(t, f.submitter.History())
}

func TestValidationNoActiveAccount(t *testing.T) {
	c := chaintest.New()
	token, err := c.Bind(contract.FixedSupplyToken, c.DeployToken(chaintest.Alice, big.NewInt(1)))
	require.NoError(t, err)
	s := txn.NewSubmitter(c, wallet.NewRegistry(c))
	defer s.Close()

	_, err = s.Transfer(context.Background(), token, chaintest.Bob.Hex(), "1")
	assert.ErrorIs(t, err, txn.ErrValidation)
	assert.ErrorIs(t, err, wallet.ErrNoActiveAccount)
	assert.Empty(t, c.Calls())
}

func TestValidationReadMethodAndBadArgs(t *testing.T) {
	f := newFixture(t)

	_, err := f.submitter.Submit(context.Background(), f.token, "balanceOf", chaintest.Alice)
	assert.ErrorIs(t, err, txn.ErrValidation)
	assert.ErrorIs(t, err, contract.ErrWrongKind)

	_, err = f.submitter.Submit(context.Background(), f.token, "transfer", "bob", 1)
	assert.ErrorIs(t, err, txn.ErrValidation)

	_, err = f.submitter.SubmitValue(context.Background(), f.token, big.NewInt(1), "transfer", chaintest.Bob, big.NewInt(1))
	assert.ErrorIs(t, err, txn.ErrValidation, "value on a non-payable method")

	assert.Empty(t, f.chain.Calls())
}

// ---------------------------------------------------------------------------
// Failure outcomes
// ---------------------------------------------------------------------------

func TestRevertedReceiptFails(t *testing.T) {
	f := newFixture(t)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1000")
	require.NoError(t, err)

	assert.Equal(t, txn.Failed, wait(t, tx))
	assert.Equal(t, []txn.State{txn.Created, txn.Submitted, txn.Pending, txn.Failed}, tx.States())
	require.NotNil(t, tx.Receipt())
	assert.Error(t, tx.Err())
	assert.Equal(t, int64(100), f.chain.TokenBalance(f.token.Address(), chaintest.Alice).Int64())
}

func TestExecutionErrorAtSendFails(t *testing.T) {
	f := newFixture(t)
	f.chain.SetRevertOnSend(true)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1000")
	require.NoError(t, err)

	assert.Equal(t, txn.Failed, tx.State())
	assert.Equal(t, []txn.State{txn.Created, txn.Submitted, txn.Failed}, tx.States())
	assert.ErrorIs(t, tx.Err(), chaintest.ErrReverted)
	assert.Equal(t, common.Hash{}, tx.Hash())
}

func TestUserRejection(t *testing.T) {
	f := newFixture(t)
	f.chain.Fail(chaintest.MethodSendTx, errors.New("MetaMask Tx Signature: User denied transaction signature."), 1)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err, "a rejection is a state, not an error")

	assert.Equal(t, txn.Rejected, tx.State())
	assert.Equal(t, []txn.State{txn.Created, txn.Submitted, txn.Rejected}, tx.States())
	assert.True(t, chain.IsUserRejection(tx.Err()))
	select {
	case <-tx.Done():
	default:
		t.Fatal("Done must be closed on a terminal state")
	}
}

func TestTransportErrorOnSendFails(t *testing.T) {
	f := newFixture(t)
	f.chain.Fail(chaintest.MethodSendTx, chain.WrapRPC("eth_sendTransaction", errors.New("connection refused")), 1)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Failed, tx.State())
	assert.Equal(t, []txn.State{txn.Created, txn.Submitted, txn.Failed}, tx.States())
	assert.ErrorIs(t, tx.Err(), chain.ErrRPC)
	assert.ErrorContains(t, tx.Err(), "connection refused")
}

func TestNodeRefusalOnSendRejects(t *testing.T) {
	f := newFixture(t)
	f.chain.Fail(chaintest.MethodSendTx, errors.New("nonce too low"), 1)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Rejected, tx.State())
	assert.NotErrorIs(t, tx.Err(), chain.ErrRPC)
}

func TestSubmitTimeout(t *testing.T) {
	f := newFixture(t, txn.WithSubmitTimeout(10*time.Millisecond))
	f.chain.SetLatency(200 * time.Millisecond)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Failed, tx.State())
	assert.ErrorIs(t, tx.Err(), chain.ErrRPC)
	assert.ErrorIs(t, tx.Err(), context.DeadlineExceeded)
}

func TestReceiptTimeout(t *testing.T) {
	f := newFixture(t, txn.WithReceiptWait(30*time.Millisecond))
	f.chain.SetPendingPolls(1 << 20)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)

	assert.Equal(t, txn.Failed, wait(t, tx))
	assert.ErrorIs(t, tx.Err(), txn.ErrReceiptTimeout)
	assert.ErrorIs(t, tx.Err(), chain.ErrRPC)
	assert.Nil(t, tx.Receipt())
}

func TestTransientReceiptErrorsKeepPolling(t *testing.T) {
	f := newFixture(t)
	f.chain.Fail(chaintest.MethodReceipt, chain.WrapRPC("eth_getTransactionReceipt", errors.New("reset")), 2)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Confirmed, wait(t, tx))
	assert.Equal(t, 3, f.chain.CallCount(chaintest.MethodReceipt))
}

func TestNoAutomaticRetry(t *testing.T) {
	f := newFixture(t)
	f.chain.Fail(chaintest.MethodSendTx, errors.New("user rejected the request"), 1)

	first, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Rejected, first.State())
	assert.Equal(t, 1, f.chain.CallCount(chaintest.MethodSendTx))

	second, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Confirmed, wait(t, second))

	hist := f.submitter.History()
	require.Len(t, hist, 2)
	assert.Same(t, first, hist[0])
	assert.Same(t, second, hist[1])
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, txn.Rejected, first.State(), "an earlier attempt never changes")
}

func TestConcurrentSubmissions(t *testing.T) {
	f := newFixture(t)

	var txs []*txn.Transaction
	for range 5 {
		tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "2")
		require.NoError(t, err)
		txs = append(txs, tx)
	}
	for _, tx := range txs {
		assert.Equal(t, txn.Confirmed, wait(t, tx))
	}
	assert.Equal(t, int64(10), f.chain.TokenBalance(f.token.Address(), chaintest.Bob).Int64())
}

func TestCloseFailsPending(t *testing.T) {
	f := newFixture(t, txn.WithReceiptWait(time.Minute))
	f.chain.SetPendingPolls(1 << 20)

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	assert.Equal(t, txn.Pending, tx.State())

	f.submitter.Close()
	assert.Equal(t, txn.Failed, tx.State())
	assert.ErrorIs(t, tx.Err(), txn.ErrClosed)

	_, err = f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	assert.ErrorIs(t, err, txn.ErrClosed)
}

// ---------------------------------------------------------------------------
// Status reporting
// ---------------------------------------------------------------------------

func TestEveryTransitionReported(t *testing.T) {
	rec := &status.Recorder{}
	r := status.New(status.WithSink(rec))
	f := newFixture(t, txn.WithReporter(r))

	tx, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	wait(t, tx)
	r.Close()

	assert.Equal(t, []string{txn.StatusInitiating, txn.StatusComplete}, rec.Statuses())
	notices := rec.Notices(status.KindTransaction)
	require.Len(t, notices, 3)
	assert.Equal(t, "submitted", notices[0].Name)
	assert.Equal(t, "pending", notices[1].Name)
	assert.Equal(t, "confirmed", notices[2].Name)
	assert.Equal(t, tx.Hash(), notices[2].TxHash)
}

func TestFailureDetailReported(t *testing.T) {
	rec := &status.Recorder{}
	r := status.New(status.WithSink(rec))
	f := newFixture(t, txn.WithReporter(r))
	f.chain.Fail(chaintest.MethodSendTx, errors.New("User denied transaction signature"), 1)

	_, err := f.submitter.Transfer(context.Background(), f.token, chaintest.Bob.Hex(), "1")
	require.NoError(t, err)
	_, err = f.submitter.Transfer(context.Background(), f.token, "bogus", "1")
	require.Error(t, err)
	r.Close()

	assert.Equal(t, []string{txn.StatusInitiating, txn.StatusError, txn.StatusError}, rec.Statuses())
	notices := rec.Notices(status.KindTransaction)
	require.Len(t, notices, 2)
	assert.Contains(t, notices[1].Text, "User denied transaction signature")
	assert.Len(t, rec.Notices(status.KindError), 1)
}

// ---------------------------------------------------------------------------
// Exchange (payable and string args)
// ---------------------------------------------------------------------------

func TestAddTokenOnExchange(t *testing.T) {
	f := newFixture(t)
	exAddr := f.chain.DeployExchange()
	ex, err := f.chain.Bind(contract.Exchange, exAddr)
	require.NoError(t, err)

	tx, err := f.submitter.Submit(context.Background(), ex, "addToken", "FIXED", f.token.Address())
	require.NoError(t, err)
	assert.Equal(t, txn.Confirmed, wait(t, tx))
	assert.Equal(t, []string{"FIXED"}, f.chain.ListedTokens(exAddr))
}
