package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/query"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show network, contracts and the active account's balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		spin := ui.NewSpinner(cmd.ErrOrStderr(), "Reading session info...")
		spin.Start()
		info, err := s.Info(cmd.Context())
		spin.Stop()
		if err != nil {
			return err
		}

		exchange := ui.Meta("not deployed")
		if info.Exchange != (common.Address{}) {
			exchange = info.Exchange.Hex()
		}
		provider := info.Provider
		if provider == "" {
			provider = "injected"
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Session", [][2]string{
			{"Network", info.Network},
			{"Provider", provider},
			{"Head block", fmt.Sprint(info.Head)},
			{cfg.TokenContract, info.Token.Hex()},
			{cfg.ExchangeContract, exchange},
			{"Account", info.Account.Hex()},
			{"Ether", info.EtherText() + " ETH"},
			{"Tokens", query.FormatUnits(info.Tokens, 0)},
		}))
		return nil
	},
}
