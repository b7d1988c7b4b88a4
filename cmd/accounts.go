package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/txn"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var accountsLabel string

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List and manage accounts",
	Long: `List the accounts the provider manages plus any watch-only accounts
added with "accounts add". The first discovered account is active unless
--from selects another.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		accounts := s.Accounts()
		if len(accounts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warn("No accounts."))
			return nil
		}
		active, _ := s.ActiveAccount()
		fmt.Fprint(cmd.OutOrStdout(), ui.AccountsTable(accounts, active.Address))
		return nil
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add a watch-only account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		acct, err := s.AddExternalAccount(args[0], accountsLabel)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Added "+acct.Address.Hex()))
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a watch-only account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := txn.ParseAddress(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.RemoveExternalAccount(addr); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Removed "+addr.Hex()))
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().StringVar(&accountsLabel, "label", "", "label shown next to the address")
	accountsCmd.AddCommand(accountsAddCmd, accountsRemoveCmd)
}
