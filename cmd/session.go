package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/session"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

// sessionOptions are appended to every session the commands open.
var sessionOptions []session.Option

// openSession opens a session for cmd with status lines going to its
// stderr, then applies --from. The caller must Close it.
func openSession(cmd *cobra.Command, extra ...session.Option) (*session.Session, error) {
	return newSession(cmd, append([]session.Option{session.WithSink(cliSink(cmd.ErrOrStderr()))}, extra...)...)
}

func newSession(cmd *cobra.Command, extra ...session.Option) (*session.Session, error) {
	opts := []session.Option{session.WithLogger(logger)}
	opts = append(opts, sessionOptions...)
	opts = append(opts, extra...)

	s, err := session.Open(cmd.Context(), cfg, opts...)
	if err != nil {
		return nil, err
	}
	if fromAddr != "" {
		addr, err := txn.ParseAddress(fromAddr)
		if err == nil {
			err = s.SelectAccount(addr)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("--from: %w", err)
		}
	}
	return s, nil
}

// cliSink prints status lines and non-event notices. Contract events are
// printed by the commands that follow them.
func cliSink(w io.Writer) status.Sink {
	return status.SinkFuncs{
		Status: func(text string) { fmt.Fprintln(w, ui.StatusLine(text)) },
		Notice: func(n status.Notice) {
			switch n.Kind {
			case status.KindSubscription, status.KindError:
				fmt.Fprintln(w, ui.NoticeLine(n))
			case status.KindTransaction:
				if verbose {
					fmt.Fprintln(w, ui.NoticeLine(n))
				}
			}
		},
	}
}

// signalContext is cmd's context, cancelled on interrupt.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

// ownerOr parses arg as an address, or falls back to the active account.
func ownerOr(s *session.Session, arg string) (common.Address, error) {
	if arg != "" {
		return txn.ParseAddress(arg)
	}
	acct, ok := s.ActiveAccount()
	if !ok {
		return common.Address{}, errors.New("no active account; pass an address or use --from")
	}
	return acct.Address, nil
}

func errLine(err error) string {
	return ui.Err(err.Error())
}
