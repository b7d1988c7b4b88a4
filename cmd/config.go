package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/config"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Fprintln(out, string(data))
		fmt.Fprintln(out, ui.Meta("Config directory: "+cfg.Dir()))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long:  "Change one setting. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := stored()
		if err != nil {
			return err
		}
		if err := saved.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := saved.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("%s set to %q", args[0], args[1])))
		return nil
	},
}

var configAddRPCCmd = &cobra.Command{
	Use:   "add-rpc <url>",
	Short: "Add a fallback RPC endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := stored()
		if err != nil {
			return err
		}
		if err := saved.AddRPC(args[0]); err != nil {
			// Already there, not fatal.
			fmt.Fprintln(cmd.ErrOrStderr(), ui.Warn(err.Error()))
			return nil
		}
		if err := saved.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Added fallback "+args[0]))
		return nil
	},
}

var configRemoveRPCCmd = &cobra.Command{
	Use:   "remove-rpc <url>",
	Short: "Remove a fallback RPC endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := stored()
		if err != nil {
			return err
		}
		if err := saved.RemoveRPC(args[0]); err != nil {
			return err
		}
		if err := saved.Validate(); err != nil {
			return err
		}
		if err := saved.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Removed fallback "+args[0]))
		return nil
	},
}

// stored re-reads the config file so flag and environment overrides
// applied to cfg are not written back.
func stored() (*config.Config, error) {
	return config.LoadFile(cfg.Dir())
}

func init() {
	configCmd.AddCommand(configListCmd, configSetCmd, configAddRPCCmd, configRemoveRPCCmd)
}
