package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var addTokenCmd = &cobra.Command{
	Use:   "add-token <symbol> <address>",
	Short: "List a token on the exchange",
	Long: `Call addToken on the configured exchange from the active account and
wait for the result. Listing a symbol twice fails on chain.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext(cmd)
		defer cancel()

		spin := ui.NewSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Adding %s to %s...", args[0], cfg.ExchangeContract))
		spin.Start()
		tx, err := s.AddTokenToExchange(ctx, args[0], args[1])
		spin.Stop()
		if err != nil {
			return err
		}

		s.Reporter().Flush()
		fmt.Fprintln(cmd.OutOrStdout(), ui.TransitionsBlock(tx))
		return settledErr(tx)
	},
}
