package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/query"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var balanceToken string

var balanceCmd = &cobra.Command{
	Use:   "balance [owner]",
	Short: "Show a token balance",
	Long: `Show how many tokens owner holds. Without an owner the active account
is used; without --token the configured token contract.

Examples:
  w3dapp balance
  w3dapp balance 0xABC...
  w3dapp balance --token FixedSupplyToken --from 0xDEF...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		owner, err := ownerOr(s, firstArg(args))
		if err != nil {
			return err
		}
		bal, err := s.GetBalanceView(cmd.Context(), owner, balanceToken)
		if err != nil {
			return err
		}

		token := balanceToken
		if token == "" {
			token = cfg.TokenContract
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Balance", [][2]string{
			{"Owner", owner.Hex()},
			{"Token", token},
			{"Balance", query.FormatUnits(bal, 0)},
		}))
		return nil
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	balanceCmd.Flags().StringVar(&balanceToken, "token", "", "token contract name (default: configured token)")
}
