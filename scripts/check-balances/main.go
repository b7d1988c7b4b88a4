// check-balances: opens a session with the stored config and prints the
// ether and token balance of every known account, read in parallel.
//
// Run from the module root:
//
//	go run ./scripts/check-balances
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/w3dapp/internal/config"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
	"github.com/Mohsinsiddi/w3dapp/internal/query"
	"github.com/Mohsinsiddi/w3dapp/internal/session"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/wallet"
)

const (
	rpcTimeout  = 12 * time.Second
	parallelism = 8
)

// ── types ─────────────────────────────────────────────────────────────────────

type result struct {
	account wallet.Account
	ether   string
	tokens  string
	err     string
}

// ── main ──────────────────────────────────────────────────────────────────────

func main() {
	dir := flag.String("config", "", "config directory (default: ~/.w3dapp)")
	flag.Parse()

	if err := run(*dir); err != nil {
		fmt.Fprintln(os.Stderr, "check-balances:", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	log, err := logging.New("warn", false)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	s, err := session.Open(ctx, cfg,
		session.WithLogger(log),
		session.WithSink(status.LogSink{Log: log.Named("status")}))
	if err != nil {
		return err
	}
	defer s.Close()

	accounts := s.Accounts()
	results := make([]result, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, acct := range accounts {
		g.Go(func() error {
			r := result{account: acct, ether: "—", tokens: "—"}
			if wei, err := s.EtherBalance(gctx, acct.Address); err != nil {
				r.err = shortErr(err)
			} else {
				r.ether = query.FormatEther(wei, 4)
			}
			if bal, err := s.GetBalanceView(gctx, acct.Address, ""); err != nil {
				r.err = shortErr(err)
			} else {
				r.tokens = query.FormatUnits(bal, 0)
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	log.Debug("balances read", zap.Int("accounts", len(results)), zap.String("network", s.Network()))
	printTable(s.Network(), cfg.TokenContract, results)
	return nil
}

// ── output ────────────────────────────────────────────────────────────────────

func printTable(network, token string, results []result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "network %s\n\n", network)
	fmt.Fprintf(w, "ACCOUNT\tSOURCE\tLABEL\tETHER\t%s\tNOTE\n", strings.ToUpper(token))
	fmt.Fprintln(w, strings.Repeat("-", 42)+"\t"+
		strings.Repeat("-", 10)+"\t"+
		strings.Repeat("-", 10)+"\t"+
		strings.Repeat("-", 12)+"\t"+
		strings.Repeat("-", 12)+"\t"+
		strings.Repeat("-", 12))

	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.account.Address.Hex(), r.account.Source, r.account.Label, r.ether, r.tokens, r.err)
	}
	w.Flush()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func shortErr(err error) string {
	s := err.Error()
	if len(s) > 30 {
		return s[:30] + "…"
	}
	return s
}
