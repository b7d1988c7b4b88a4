package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/config"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3dapp/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir   string
	cfg      *config.Config
	logger   *zap.Logger
	verbose  bool
	rpcURL   string
	fromAddr string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3dapp",
	Short: "Token and exchange session manager",
	Long: `w3dapp talks to a FixedSupplyToken and its Exchange over Ethereum JSON-RPC.

  Check balances and allowances, send transfers and approvals, list tokens
  on the exchange and follow contract events, all through one session that
  resolves a provider, discovers accounts and binds the deployed contracts.

The provider is the --rpc endpoint (or $W3DAPP_INJECTED_RPC) when it
answers, else the configured fallbacks chosen by the rpc algorithm.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if rpcURL != "" {
			cfg.InjectedRPC = rpcURL
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errLine(err))
		os.Exit(1)
	}
}

func init() {
	// W3DAPP_CONFIG_DIR env var overrides the --config default.
	if envDir := os.Getenv(config.EnvConfigDir); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.w3dapp)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "provider endpoint tried before the fallbacks")
	rootCmd.PersistentFlags().StringVar(&fromAddr, "from", "", "account to act as (default: first discovered)")

	rootCmd.AddCommand(
		initCmd,
		infoCmd,
		accountsCmd,
		balanceCmd,
		allowanceCmd,
		transferCmd,
		approveCmd,
		addTokenCmd,
		eventsCmd,
		watchCmd,
		deploymentsCmd,
		configCmd,
	)
}
