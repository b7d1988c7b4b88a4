package ui

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Mohsinsiddi/w3dapp/internal/events"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/wallet"
)

// FormatArgs renders decoded event arguments sorted by name.
func FormatArgs(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(args[k]))
	}
	return strings.Join(parts, ", ")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case *big.Int:
		if val == nil {
			return "0"
		}
		return val.String()
	case []byte:
		return hexutil.Encode(val)
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}

// EventLine renders one delivered event for line-oriented output.
func EventLine(ev events.Event) string {
	return fmt.Sprintf("%s %s %s %s",
		Meta(fmt.Sprintf("#%-4d", ev.Seq)),
		ContractName(padR(ev.Name, 10)),
		Meta(fmt.Sprintf("block %-6d", ev.Block)),
		FormatArgs(ev.Args))
}

// StatusLine styles a status message by what it reports.
func StatusLine(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "lost"), strings.Contains(lower, "couldn't"):
		return Err(text)
	case strings.Contains(lower, "complete"), strings.Contains(lower, "added"):
		return Success(text)
	case strings.Contains(lower, "initiating"), strings.Contains(lower, "please wait"):
		return Info(text)
	default:
		return Meta(text)
	}
}

// NoticeLine renders a notice that is not a contract event.
func NoticeLine(n status.Notice) string {
	switch n.Kind {
	case status.KindError:
		return Err(n.Text)
	case status.KindSubscription:
		return Warn(n.Text)
	case status.KindTransaction:
		return Meta(n.Text)
	default:
		return n.String()
	}
}

// StateText styles a transaction state.
func StateText(s txn.State) string {
	switch s {
	case txn.Confirmed:
		return StyleSuccess.Render(string(s))
	case txn.Failed, txn.Rejected:
		return StyleError.Render(string(s))
	case txn.Pending, txn.Submitted:
		return StyleWarning.Render(string(s))
	default:
		return StyleMeta.Render(string(s))
	}
}

// TransitionsBlock renders a transaction's audit trail.
func TransitionsBlock(tx *txn.Transaction) string {
	pairs := [][2]string{
		{"Transaction", tx.ID()},
		{"Call", tx.Contract() + "." + tx.Method()},
		{"From", tx.From().Hex()},
		{"State", string(tx.State())},
	}
	if h := tx.Hash(); h != (common.Hash{}) {
		pairs = append(pairs, [2]string{"Hash", h.Hex()})
	}
	if r := tx.Receipt(); r != nil {
		pairs = append(pairs, [2]string{"Block", r.BlockNumber.String()})
		pairs = append(pairs, [2]string{"Gas used", fmt.Sprint(r.GasUsed)})
	}
	if err := tx.Err(); err != nil {
		pairs = append(pairs, [2]string{"Error", trimErr(err.Error())})
	}
	for _, tr := range tx.Transitions() {
		line := fmt.Sprintf("%s → %s", tr.From, tr.To)
		if tr.Detail != "" {
			line += "  " + tr.Detail
		}
		pairs = append(pairs, [2]string{tr.At.Format("15:04:05.000"), line})
	}
	return KeyValueBlock("Transaction", pairs)
}

// AccountsTable lists accounts, marking the active one.
func AccountsTable(accounts []wallet.Account, active common.Address) string {
	t := NewTable([]Column{
		{Title: "", Width: 1},
		{Title: "ADDRESS", Width: 42},
		{Title: "SOURCE", Width: 10},
		{Title: "LABEL", Width: 16},
	})
	for i, a := range accounts {
		mark := ""
		if a.Address == active {
			mark = "*"
			t.SelIdx = i
		}
		t.AddRow(Row{mark, a.Address.Hex(), a.Source, a.Label})
	}
	return t.Render()
}
