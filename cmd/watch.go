package cmd

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/events"
	"github.com/Mohsinsiddi/w3dapp/internal/session"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
	"github.com/Mohsinsiddi/w3dapp/internal/ui"
)

// networkCheck is how often the live feed re-reads the network id.
const networkCheck = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live TUI feed of token events",
	Long: `Open a full-screen feed of every token event from block 0 onwards.

Events arrive exactly once and in order, across provider reconnects. When
the provider switches networks the feed stops and says so.

Controls: ↑/↓ or j/k to move, c to copy the transaction hash, q to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		token, err := s.Token()
		if err != nil {
			return err
		}
		account := ""
		if acct, ok := s.ActiveAccount(); ok {
			account = acct.Address.Hex()
		}

		model := ui.NewFeedModel(token.Name(), token.Address().Hex(), s.Network(), account)
		prog := tea.NewProgram(model,
			tea.WithAltScreen(),
			tea.WithInput(cmd.InOrStdin()),
			tea.WithOutput(cmd.OutOrStdout()),
		)
		s.Reporter().AddSink(status.SinkFuncs{
			Status: func(text string) { prog.Send(ui.FeedStatusMsg(text)) },
			Notice: func(n status.Notice) {
				if n.Kind != status.KindContractEvent {
					prog.Send(ui.FeedNoticeMsg(n))
				}
			},
		})

		sub, err := s.WatchTokenEvents(ctx, events.WithChannel())
		if err != nil {
			return err
		}
		go func() {
			for ev := range sub.Events() {
				prog.Send(ui.FeedEventMsg(ev))
			}
			prog.Send(ui.FeedEndedMsg{Err: sub.Err()})
		}()
		go watchNetwork(ctx, s)

		_, err = prog.Run()
		return err
	},
}

// watchNetwork re-reads the network id until ctx ends. A change stops the
// feed through the session.
func watchNetwork(ctx context.Context, s *session.Session) {
	t := time.NewTicker(networkCheck)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SyncNetwork(ctx); err != nil && ctx.Err() == nil {
				logger.Debug("network check failed", zap.Error(err))
			}
		}
	}
}
