package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecus-labs/creditrunner/wallet"
)

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// snapshotMsg carries one polled wallet.Snapshot into the Bubble Tea event
// loop.
type snapshotMsg wallet.Snapshot

// WalletWatchModel is a Bubble Tea model for the wallet's three live numbers:
// active, banned, and total remaining credits.
type WalletWatchModel struct {
	ch       <-chan wallet.Snapshot
	snap     wallet.Snapshot
	width    int
	height   int
	quitting bool
}

// NewWalletWatchModel builds the model from a channel of polled snapshots
// and the first reading, taken synchronously before the program starts so
// the initial frame is never blank.
func NewWalletWatchModel(ch <-chan wallet.Snapshot, initial wallet.Snapshot) WalletWatchModel {
	return WalletWatchModel{ch: ch, snap: initial}
}

func (m WalletWatchModel) Init() tea.Cmd {
	return waitForSnapshot(m.ch)
}

func waitForSnapshot(ch <-chan wallet.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return tea.QuitMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m WalletWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = wallet.Snapshot(msg)
		return m, waitForSnapshot(m.ch)

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m WalletWatchModel) View() string {
	if m.quitting {
		return ""
	}

	content := TitleStyle.Render("Wallet") + "\n\n" + renderWalletBoxes(m.snap)
	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func renderWalletBoxes(s wallet.Snapshot) string {
	boxes := []string{
		renderStatBox("Active", s.Active, successColor),
		renderStatBox("Banned", s.Banned, errorColor),
		renderStatBox("Remaining", s.TotalRemaining, highlightColor),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunWalletWatchTUI polls w every interval until ctx is canceled (typically
// by Ctrl+C at the process level) or the user presses q, rendering the
// three live numbers full-screen.
func RunWalletWatchTUI(ctx context.Context, w *wallet.Wallet, interval time.Duration) error {
	ch := w.Watch(ctx, interval)
	model := NewWalletWatchModel(ch, w.Snapshot())
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderWalletSnapshot renders one wallet.Snapshot without the full TUI, for
// "wallet show".
func RenderWalletSnapshot(s wallet.Snapshot) string {
	content := TitleStyle.Render("Wallet") + "\n\n" + renderWalletBoxes(s)
	return lipgloss.NewStyle().Padding(1, 2).Render(content)
}
