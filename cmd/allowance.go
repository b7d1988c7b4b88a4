package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/query"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var allowanceOwner string

var allowanceCmd = &cobra.Command{
	Use:   "allowance <spender>",
	Short: "Show how many tokens spender may move for owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spender, err := txn.ParseAddress(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		owner, err := ownerOr(s, allowanceOwner)
		if err != nil {
			return err
		}
		v, err := s.Allowance(cmd.Context(), owner, spender)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Allowance", [][2]string{
			{"Owner", owner.Hex()},
			{"Spender", spender.Hex()},
			{"Remaining", query.FormatUnits(v, 0)},
		}))
		return nil
	},
}

func init() {
	allowanceCmd.Flags().StringVar(&allowanceOwner, "owner", "", "owner address (default: active account)")
}
