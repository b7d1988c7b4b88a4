package ui

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3dapp/internal/chain/chaintest"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/events"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/wallet"
)

// ---------------------------------------------------------------------------
// FormatArgs / EventLine
// ---------------------------------------------------------------------------

func TestFormatArgsSortedAndTyped(t *testing.T) {
	out := FormatArgs(map[string]interface{}{
		"tokens": big.NewInt(10),
		"from":   chaintest.Alice,
		"symbol": "FIXED",
		"data":   []byte{0xde, 0xad},
	})
	assert.Equal(t,
		`data=0xdead, from=`+chaintest.Alice.Hex()+`, symbol="FIXED", tokens=10`,
		out)
}

func TestFormatArgsNilBigInt(t *testing.T) {
	var n *big.Int
	assert.Equal(t, "v=0", FormatArgs(map[string]interface{}{"v": n}))
	assert.Equal(t, "", FormatArgs(nil))
}

func TestEventLine(t *testing.T) {
	line := EventLine(events.Event{
		Name:  "Transfer",
		Block: 7,
		Seq:   3,
		Args:  map[string]interface{}{"tokens": big.NewInt(5)},
	})
	assert.Contains(t, line, "#3")
	assert.Contains(t, line, "Transfer")
	assert.Contains(t, line, "block 7")
	assert.Contains(t, line, "tokens=5")
}

// ---------------------------------------------------------------------------
// StatusLine / NoticeLine / StateText
// ---------------------------------------------------------------------------

func TestStatusLineClassifies(t *testing.T) {
	cases := map[string]string{
		"Error sending coin; see log.":            "✗",
		"Event subscription lost; see log.":       "✗",
		"Transaction complete!":                   "✓",
		"Token added":                             "✓",
		"Initiating transaction... (please wait)": "ℹ",
	}
	for text, mark := range cases {
		t.Run(text, func(t *testing.T) {
			out := StatusLine(text)
			assert.Contains(t, out, mark)
			assert.Contains(t, out, text)
		})
	}
	assert.Equal(t, Meta("Network changed to 42"), StatusLine("Network changed to 42"))
}

func TestNoticeLine(t *testing.T) {
	assert.Contains(t, NoticeLine(status.Notice{Kind: status.KindError, Text: "boom"}), "✗ boom")
	assert.Contains(t, NoticeLine(status.Notice{Kind: status.KindSubscription, Text: "resubscribed"}), "⚠ resubscribed")
	assert.Contains(t, NoticeLine(status.Notice{Kind: status.KindTransaction, Text: "pending"}), "pending")

	ev := NoticeLine(status.Notice{Kind: status.KindContractEvent, Contract: "FixedSupplyToken", Name: "Transfer", Seq: 1})
	assert.Contains(t, ev, "FixedSupplyToken.Transfer")
}

func TestStateText(t *testing.T) {
	for _, s := range []txn.State{txn.Created, txn.Submitted, txn.Pending, txn.Confirmed, txn.Failed, txn.Rejected} {
		assert.Contains(t, StateText(s), string(s))
	}
}

// ---------------------------------------------------------------------------
// TransitionsBlock / AccountsTable
// ---------------------------------------------------------------------------

func TestTransitionsBlockConfirmed(t *testing.T) {
	c := chaintest.New()
	token, err := c.Bind(contract.FixedSupplyToken, c.DeployToken(chaintest.Alice, big.NewInt(100)))
	require.NoError(t, err)
	accounts := wallet.NewRegistry(c)
	_, err = accounts.Discover(context.Background())
	require.NoError(t, err)

	s := txn.NewSubmitter(c, accounts, txn.WithBackoff(time.Millisecond, 5*time.Millisecond))
	defer s.Close()

	tx, err := s.Transfer(context.Background(), token, chaintest.Bob.Hex(), "10")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := tx.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, txn.Confirmed, st)

	out := TransitionsBlock(tx)
	assert.Contains(t, out, tx.ID())
	assert.Contains(t, out, "FixedSupplyToken.transfer")
	assert.Contains(t, out, tx.Hash().Hex())
	assert.Contains(t, out, "Gas used")
	assert.Contains(t, out, "pending → confirmed")
	assert.NotContains(t, out, "Error")
}

func TestAccountsTableMarksActive(t *testing.T) {
	out := AccountsTable([]wallet.Account{
		{Address: chaintest.Alice, Source: wallet.SourceDiscovered},
		{Address: chaintest.Bob, Source: wallet.SourceExternal, Label: "cold"},
	}, chaintest.Bob)

	assert.Contains(t, out, chaintest.Alice.Hex())
	assert.Contains(t, out, chaintest.Bob.Hex())
	assert.Contains(t, out, "cold")
	assert.Contains(t, out, "*")
}

func TestAccountsTableNoActive(t *testing.T) {
	out := AccountsTable([]wallet.Account{{Address: chaintest.Alice}}, common.Address{})
	assert.NotContains(t, out, "*")
}

func TestTrimErrKeepsCause(t *testing.T) {
	err := errors.New(`rpc: eth_call: Post "http://127.0.0.1:1": dial tcp 127.0.0.1:1: connect: connection refused`)
	assert.Contains(t, trimErr(err.Error()), "dial tcp")
}
