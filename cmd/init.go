package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var initRPC string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults",
	Long: `Write config.json to the config directory, keeping values already in it.
Edit it afterwards with "w3dapp config set".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Banner(Version))

		saved, err := stored()
		if err != nil {
			return err
		}
		if initRPC != "" {
			if err := saved.AddRPC(initRPC); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.Warn(err.Error()))
			}
		}
		if err := saved.Validate(); err != nil {
			return err
		}
		if err := saved.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintln(out, ui.Success("Config written to "+saved.Dir()))
		fmt.Fprintln(out, ui.KeyValueBlock("", [][2]string{
			{"Fallback RPCs", fmt.Sprint(saved.FallbackRPCs)},
			{"Algorithm", saved.RPCAlgorithm},
			{"Token", saved.TokenContract},
			{"Exchange", saved.ExchangeContract},
			{"Artifacts", saved.ArtifactsDir},
		}))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initRPC, "rpc-fallback", "", "also add this fallback endpoint")
}
