package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/session"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var assumeYes bool

var transferCmd = &cobra.Command{
	Use:   "transfer <recipient> <amount>",
	Short: "Send tokens from the active account",
	Long: `Send amount tokens from the active account to recipient and follow the
transaction until it is confirmed or fails.

Examples:
  w3dapp transfer 0xABC... 10
  w3dapp transfer 0xABC... 10 --from 0xDEF... --yes`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipient, amount := args[0], args[1]
		return runWrite(cmd, fmt.Sprintf("Transfer %s tokens to %s?", amount, recipient),
			func(ctx context.Context, s *session.Session) (*txn.Transaction, error) {
				return s.SubmitTransfer(ctx, recipient, amount)
			})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <spender> <amount>",
	Short: "Let spender move tokens of the active account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spender, amount := args[0], args[1]
		return runWrite(cmd, fmt.Sprintf("Approve %s to spend %s tokens?", spender, amount),
			func(ctx context.Context, s *session.Session) (*txn.Transaction, error) {
				return s.SubmitApproval(ctx, spender, amount)
			})
	},
}

// runWrite confirms, submits and follows one transaction, then prints its
// audit trail. A failed or rejected transaction is returned as an error.
func runWrite(cmd *cobra.Command, prompt string, submit func(context.Context, *session.Session) (*txn.Transaction, error)) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if acct, ok := s.ActiveAccount(); ok {
		prompt += " (from " + acct.Address.Hex() + ")"
	}
	if !assumeYes && !ui.ConfirmDanger(cmd.InOrStdin(), cmd.ErrOrStderr(), prompt) {
		fmt.Fprintln(cmd.ErrOrStderr(), ui.Meta("Cancelled."))
		return nil
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	tx, err := submit(ctx, s)
	if err != nil {
		return err
	}
	return follow(cmd, s, tx)
}

// follow waits for tx to settle and prints its transitions.
func follow(cmd *cobra.Command, s *session.Session, tx *txn.Transaction) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), s.WaitTimeout())
	defer cancel()

	spin := ui.NewSpinner(cmd.ErrOrStderr(), "Waiting for "+tx.Method()+"...")
	spin.Start()
	_, err := tx.Wait(ctx)
	spin.Stop()

	s.Reporter().Flush()
	fmt.Fprintln(cmd.OutOrStdout(), ui.TransitionsBlock(tx))
	if err != nil {
		return fmt.Errorf("transaction %s still %s: %w", tx.ID(), tx.State(), err)
	}
	return settledErr(tx)
}

// settledErr is nil for a confirmed transaction and describes the outcome
// otherwise.
func settledErr(tx *txn.Transaction) error {
	st := tx.State()
	if st == txn.Confirmed {
		return nil
	}
	cause := tx.Err()
	if cause == nil {
		cause = errors.New(string(st))
	}
	return fmt.Errorf("%s.%s %s: %w", tx.Contract(), tx.Method(), st, cause)
}

func init() {
	for _, c := range []*cobra.Command{transferCmd, approveCmd} {
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
	}
}
