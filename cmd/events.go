package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3dapp/internal/events"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

var (
	eventsContract string
	eventsName     string
	eventsSince    uint64
	eventsUntil    uint64
	eventsFollow   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print contract events",
	Long: `Print the events of a contract in chain order, each exactly once.

By default the range ends at the current head and the command exits once
it is replayed. --follow keeps printing new events until interrupted,
resubscribing when the provider drops the feed.

Examples:
  w3dapp events
  w3dapp events --event Transfer --since 120
  w3dapp events --contract Exchange --follow`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext(cmd)
		defer cancel()

		contract := eventsContract
		if contract == "" {
			contract = cfg.TokenContract
		}
		f := events.Filter{Event: eventsName, FromBlock: eventsSince}
		if !eventsFollow {
			until := eventsUntil
			if until == 0 {
				if until, err = s.Head(ctx); err != nil {
					return err
				}
			}
			if until < eventsSince {
				return fmt.Errorf("--until %d is before --since %d", until, eventsSince)
			}
			f.ToBlock = events.UpTo(until)
		}

		sub, err := s.WatchContract(ctx, contract, f, events.WithChannel())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		n := 0
		for ev := range sub.Events() {
			fmt.Fprintln(out, ui.EventLine(ev))
			n++
		}
		if err := sub.Err(); err != nil && ctx.Err() == nil {
			return err
		}
		if !eventsFollow {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.Meta(fmt.Sprintf("%d event(s)", n)))
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsContract, "contract", "", "contract name (default: configured token)")
	eventsCmd.Flags().StringVar(&eventsName, "event", "", "only this event, e.g. Transfer")
	eventsCmd.Flags().Uint64Var(&eventsSince, "since", 0, "first block")
	eventsCmd.Flags().Uint64Var(&eventsUntil, "until", 0, "last block (default: current head)")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "keep following new events")
	eventsCmd.MarkFlagsMutuallyExclusive("until", "follow")
}
