package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/deploy"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var syncWatch time.Duration

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "Show and sync contract deployment addresses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := deploymentsPath()
		m, err := deploy.Load(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(m) == 0 {
			fmt.Fprintln(out, ui.Warn("No deployments in "+path))
			return nil
		}

		t := ui.NewTable([]ui.Column{{Title: "CONTRACT", Width: 20}, {Title: "NETWORK", Width: 10}, {Title: "ADDRESS", Width: 42}})
		for _, name := range m.Names() {
			for _, network := range sortedKeys(m[name]) {
				addr, _ := m.Address(name, network)
				t.AddRow(ui.Row{name, network, addr.Hex()})
			}
		}
		fmt.Fprint(out, t.Render())
		fmt.Fprintln(out, ui.Meta("File: "+path))
		return nil
	},
}

var deploymentsSyncCmd = &cobra.Command{
	Use:   "sync <url>",
	Short: "Merge a published deployments manifest into the local file",
	Long: `Fetch a manifest of the form {"Name": {"networkId": "0xaddr"}} and merge
it over the local deployments file. With --watch the fetch repeats until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := deploymentsPath()
		if cfg.DeploymentsFile == "" {
			if err := rememberDeployments(path); err != nil {
				return err
			}
		}

		s := deploy.New(path, deploy.WithLogger(logger))
		out := cmd.OutOrStdout()
		report := func(m deploy.Manifest) {
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("Synced %d contract(s) into %s", len(m), s.Dest())))
		}

		if syncWatch > 0 {
			ctx, stop := signalContext(cmd)
			defer stop()
			return s.Watch(ctx, args[0], syncWatch, report)
		}
		m, err := s.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		report(m)
		return nil
	},
}

// deploymentsPath is the configured deployments file, or one inside the
// config directory when none is set.
func deploymentsPath() string {
	if cfg.DeploymentsFile != "" {
		return cfg.DeploymentsFile
	}
	return filepath.Join(cfg.Dir(), "deployments.json")
}

func rememberDeployments(path string) error {
	saved, err := stored()
	if err != nil {
		return err
	}
	if err := saved.Set("deployments_file", path); err != nil {
		return err
	}
	if err := saved.Save(); err != nil {
		return err
	}
	cfg.DeploymentsFile = path
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	deploymentsSyncCmd.Flags().DurationVar(&syncWatch, "watch", 0, "repeat the sync at this interval")
	deploymentsCmd.AddCommand(deploymentsSyncCmd)
}
