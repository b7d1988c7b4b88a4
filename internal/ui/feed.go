package ui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/w3dapp/internal/events"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
)

// maxFeedRows caps the rows kept by the live feed.
const maxFeedRows = 200

var spinFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// FeedEventMsg carries one delivered contract event.
type FeedEventMsg events.Event

// FeedStatusMsg carries a status line.
type FeedStatusMsg string

// FeedNoticeMsg carries a subscription or transaction notice.
type FeedNoticeMsg status.Notice

// FeedEndedMsg is sent once the subscription stopped. Err is nil when it
// ended normally.
type FeedEndedMsg struct{ Err error }

// FeedModel is the Bubble Tea model for the live contract event feed.
type FeedModel struct {
	Contract string
	Address  string
	Network  string
	Account  string

	Rows     []events.Event
	Status   string
	Notice   string
	Ended    bool
	EndErr   error
	Frame    int
	Quitting bool

	cursor int
	flash  string
	copy   func(string) error
}

// NewFeedModel creates a feed for contract at address.
func NewFeedModel(contract, address, network, account string) FeedModel {
	return FeedModel{
		Contract: contract,
		Address:  address,
		Network:  network,
		Account:  account,
		copy:     copyToClipboard,
	}
}

type feedTickMsg struct{}

func feedSpinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return feedTickMsg{}
	})
}

func (m FeedModel) Init() tea.Cmd { return feedSpinTick() }

func (m FeedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		m.flash = ""
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.Rows)-1 {
				m.cursor++
			}

		case "c":
			if m.cursor >= len(m.Rows) {
				m.flash = "Nothing selected"
				break
			}
			hash := m.Rows[m.cursor].TxHash.Hex()
			if m.copy != nil && m.copy(hash) == nil {
				m.flash = "Copied: " + hash[:10] + "…"
			} else {
				m.flash = "Copy failed"
			}
		}

	case feedTickMsg:
		m.Frame = (m.Frame + 1) % len(spinFrames)
		if m.Ended {
			return m, nil
		}
		return m, feedSpinTick()

	case FeedEventMsg:
		// Latest first.
		m.Rows = append([]events.Event{events.Event(msg)}, m.Rows...)
		if len(m.Rows) > maxFeedRows {
			m.Rows = m.Rows[:maxFeedRows]
		}
		if m.cursor > 0 {
			m.cursor++
		}

	case FeedStatusMsg:
		m.Status = string(msg)

	case FeedNoticeMsg:
		m.Notice = NoticeLine(status.Notice(msg))

	case FeedEndedMsg:
		m.Ended = true
		m.EndErr = msg.Err
	}

	return m, nil
}

func (m FeedModel) View() string {
	if m.Quitting {
		return ""
	}

	var sb strings.Builder

	// ── Title ─────────────────────────────────────────────────────────────
	title := fmt.Sprintf("📡  %s events  ·  %s  ·  network %s",
		m.Contract, TruncateAddr(m.Address), m.Network)
	sb.WriteString(StyleTitle.Render(title) + "\n")
	if m.Account != "" {
		sb.WriteString(Meta("  account "+m.Account) + "\n")
	}

	// ── Status bar ────────────────────────────────────────────────────────
	switch {
	case m.Ended && m.EndErr != nil:
		sb.WriteString(Err("feed stopped: "+trimErr(m.EndErr.Error())) + "\n")
	case m.Ended:
		sb.WriteString(Meta("  feed ended") + "\n")
	default:
		sb.WriteString(StyleInfo.Render(fmt.Sprintf("%s following, %d event(s)", spinFrames[m.Frame], len(m.Rows))) + "\n")
	}
	if m.Status != "" {
		sb.WriteString(StatusLine(m.Status) + "\n")
	}
	if m.Notice != "" {
		sb.WriteString(m.Notice + "\n")
	}
	sb.WriteString("\n")

	// ── Table ─────────────────────────────────────────────────────────────
	const (
		wSeq   = 6
		wName  = 12
		wBlock = 9
		wHash  = 13
	)
	sep := StyleMeta.Render(strings.Repeat("─", wSeq+wName+wBlock+wHash+40))

	sb.WriteString(
		padR(StyleDim.Render("SEQ"), wSeq) + "  " +
			padR(StyleDim.Render("EVENT"), wName) + "  " +
			padR(StyleDim.Render("BLOCK"), wBlock) + "  " +
			padR(StyleDim.Render("TX"), wHash) + "  " +
			StyleDim.Render("ARGS") + "\n",
	)
	sb.WriteString(sep + "\n")

	if len(m.Rows) == 0 {
		sb.WriteString(StyleMeta.Render("  Waiting for events…") + "\n")
	} else {
		for i, ev := range m.Rows {
			line :=
				padR(Meta(fmt.Sprintf("#%d", ev.Seq)), wSeq) + "  " +
					padR(ContractName(ev.Name), wName) + "  " +
					padR(Meta(fmt.Sprintf("%d", ev.Block)), wBlock) + "  " +
					padR(Addr(TruncateAddr(ev.TxHash.Hex())), wHash) + "  " +
					FormatArgs(ev.Args)

			if i == m.cursor {
				sb.WriteString(StyleSelected.Render(line) + "\n")
			} else {
				sb.WriteString(line + "\n")
			}
		}
		sb.WriteString(sep + "\n")
	}

	// ── Controls ─────────────────────────────────────────────────────────
	sb.WriteString("\n")
	if m.flash != "" {
		sb.WriteString(StyleSuccess.Render("  ✓ " + m.flash))
	} else {
		sb.WriteString(feedControls())
	}
	sb.WriteString("\n")

	return sb.String()
}

func feedControls() string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	sb.WriteString(StyleMeta.Render("[ ↑↓ ]"))
	sb.WriteString(StyleMeta.Render(" navigate"))
	sb.WriteString(sep)
	sb.WriteString(StyleWarning.Render("[ c ]"))
	sb.WriteString(StyleMeta.Render(" copy tx hash"))
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ]"))
	sb.WriteString(StyleMeta.Render(" quit"))
	return sb.String()
}

// copyToClipboard writes text to the system clipboard.
func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "windows":
		cmd = exec.Command("clip")
	default:
		// Try wl-copy (Wayland), fall back to xclip.
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	_, _ = io.WriteString(stdin, text)
	stdin.Close()
	return cmd.Wait()
}
