package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	ColorSuccess   = lipgloss.Color("#00D26A") // green, confirmed / success
	ColorWarning   = lipgloss.Color("#FFB800") // yellow, pending / warning
	ColorError     = lipgloss.Color("#FF4444") // red, failed / rejected
	ColorAddress   = lipgloss.Color("#00B4D8") // cyan, addresses and hashes
	ColorValue     = lipgloss.Color("#FFFFFF") // white bold, amounts
	ColorMeta      = lipgloss.Color("#555555") // dim gray, metadata
	ColorBorder    = lipgloss.Color("#1E3A5F") // dark blue, UI chrome
	ColorContract  = lipgloss.Color("#9B5DE5") // purple, contract and event names
	ColorHighlight = lipgloss.Color("#F15BB5") // pink, selected rows
	ColorInfo      = lipgloss.Color("#4CC9F0") // light blue, progress
)

// Base styles.
var (
	StyleSuccess  = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning  = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError    = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleAddress  = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleValue    = lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	StyleMeta     = lipgloss.NewStyle().Foreground(ColorMeta)
	StyleContract = lipgloss.NewStyle().Foreground(ColorContract).Bold(true)
	StyleInfo     = lipgloss.NewStyle().Foreground(ColorInfo)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	StyleSelected = lipgloss.NewStyle().
			Background(ColorHighlight).
			Foreground(lipgloss.Color("#000000")).
			Bold(true)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorContract).
			Bold(true).
			MarginBottom(1)

	StyleDim = lipgloss.NewStyle().Foreground(ColorMeta)
)

// Banner returns the w3dapp banner.
func Banner(version string) string {
	art := `
  ██╗    ██╗██████╗ ██████╗  █████╗ ██████╗ ██████╗
  ██║    ██║╚════██╗██╔══██╗██╔══██╗██╔══██╗██╔══██╗
  ██║ █╗ ██║ █████╔╝██║  ██║███████║██████╔╝██████╔╝
  ██║███╗██║ ╚═══██╗██║  ██║██╔══██║██╔═══╝ ██╔═══╝
  ╚███╔███╔╝██████╔╝██████╔╝██║  ██║██║     ██║
   ╚══╝╚══╝ ╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚═╝`

	tagline := StyleMeta.Render("     Token & Exchange session manager  ⚡  v" + version)
	return StyleContract.Render(art) + "\n" + tagline + "\n"
}

// Success formats a success message.
func Success(msg string) string { return StyleSuccess.Render("✓ " + msg) }

// Warn formats a warning message.
func Warn(msg string) string { return StyleWarning.Render("⚠ " + msg) }

// Err formats an error message.
func Err(msg string) string { return StyleError.Render("✗ " + msg) }

// Info formats a progress or informational message.
func Info(msg string) string { return StyleInfo.Render("ℹ " + msg) }

// Addr formats an address.
func Addr(a string) string { return StyleAddress.Render(a) }

// Meta formats metadata text.
func Meta(m string) string { return StyleMeta.Render(m) }

// ContractName formats a contract or event name.
func ContractName(c string) string { return StyleContract.Render(c) }

// TruncateAddr shortens an address for display: 0x1234…5678.
func TruncateAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// padR pads s to visible width n (ANSI-safe using lipgloss.Width).
func padR(s string, n int) string {
	w := lipgloss.Width(s)
	if w >= n {
		return s
	}
	return s + strings.Repeat(" ", n-w)
}

// trimErr keeps the informative tail of a provider error for narrow views.
func trimErr(s string) string {
	for _, marker := range []string{
		"dial tcp", "connection refused", "context deadline", "VM Exception",
	} {
		if idx := strings.Index(s, marker); idx >= 0 {
			s = s[idx:]
			break
		}
	}
	if len(s) > 40 {
		return s[:40] + "…"
	}
	return s
}
